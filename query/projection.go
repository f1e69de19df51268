package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marsphotos/rovercore"
)

// FieldSet selects the response shape a projected photo is serialized into.
type FieldSet string

const (
	FieldSetBasic    FieldSet = "basic"
	FieldSetExtended FieldSet = "extended"
	FieldSetFull     FieldSet = "full"
)

// ValidFieldSets is the fixed allow-list; any other value is a caller error.
var ValidFieldSets = map[FieldSet]bool{
	FieldSetBasic: true, FieldSetExtended: true, FieldSetFull: true,
}

// Dimensions is the extended field-set's derived width/height/aspect_ratio
// triple. Omitted entirely when either dimension is unknown or the height
// is zero.
type Dimensions struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// LocationView is the extended field-set's site/drive pair.
type LocationView struct {
	Site  *int `json:"site,omitempty"`
	Drive *int `json:"drive,omitempty"`
}

// TelemetryView is the extended field-set's pointing telemetry.
type TelemetryView struct {
	MastAz *float64 `json:"mast_az,omitempty"`
	MastEl *float64 `json:"mast_el,omitempty"`
}

// ImagesView is the extended field-set's size-class image URL set.
type ImagesView struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Small     string `json:"small,omitempty"`
	Medium    string `json:"medium,omitempty"`
	Full      string `json:"full,omitempty"`
}

// Projection is a photo serialized under one of the three field-set shapes.
// Fields beyond the basic set are left zero-valued (and tagged omitempty)
// when the requested FieldSet doesn't include them.
type Projection struct {
	ID              int64  `json:"id"`
	Sol             int    `json:"sol"`
	EarthDate       string `json:"earth_date"`
	ImgSrc          string `json:"img_src"`
	CameraShortName string `json:"camera_short_name"`
	RoverName       string `json:"rover_name"`

	NASAID     string         `json:"nasa_id,omitempty"`
	Dimensions *Dimensions    `json:"dimensions,omitempty"`
	Location   *LocationView  `json:"location,omitempty"`
	MarsTime   string         `json:"mars_time,omitempty"`
	Telemetry  *TelemetryView `json:"telemetry,omitempty"`
	SampleType string         `json:"sample_type,omitempty"`
	Images     *ImagesView    `json:"images,omitempty"`
	Title      string         `json:"title,omitempty"`
	Caption    string         `json:"caption,omitempty"`
	Credit     string         `json:"credit,omitempty"`

	// RawData is only populated for FieldSetFull, and is the one path by
	// which the verbatim upstream record reaches an API response.
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// cameraRoverLookup is the narrow capability Resolver needs: look up a
// camera or rover by id, with no assumption about caching or backend.
type cameraRoverLookup interface {
	GetCameraByID(ctx context.Context, id int64) (rovercore.Camera, error)
	GetRoverByID(ctx context.Context, id int64) (rovercore.Rover, error)
}

// Resolver projects photos into a FieldSet shape, caching camera/rover
// lookups across a single request so a page of photos sharing a camera or
// rover only resolves each one once.
type Resolver struct {
	store   cameraRoverLookup
	cameras map[int64]rovercore.Camera
	rovers  map[int64]rovercore.Rover
}

// NewResolver returns a Resolver backed by store.
func NewResolver(store cameraRoverLookup) *Resolver {
	return &Resolver{
		store:   store,
		cameras: make(map[int64]rovercore.Camera),
		rovers:  make(map[int64]rovercore.Rover),
	}
}

func (r *Resolver) camera(ctx context.Context, id int64) (rovercore.Camera, error) {
	if c, ok := r.cameras[id]; ok {
		return c, nil
	}
	c, err := r.store.GetCameraByID(ctx, id)
	if err != nil {
		return rovercore.Camera{}, fmt.Errorf("resolve camera %d: %w", id, err)
	}
	r.cameras[id] = c
	return c, nil
}

func (r *Resolver) rover(ctx context.Context, id int64) (rovercore.Rover, error) {
	if rv, ok := r.rovers[id]; ok {
		return rv, nil
	}
	rv, err := r.store.GetRoverByID(ctx, id)
	if err != nil {
		return rovercore.Rover{}, fmt.Errorf("resolve rover %d: %w", id, err)
	}
	r.rovers[id] = rv
	return rv, nil
}

// Project serializes p into fs's shape.
func (r *Resolver) Project(ctx context.Context, p rovercore.Photo, fs FieldSet) (Projection, error) {
	cam, err := r.camera(ctx, p.CameraID)
	if err != nil {
		return Projection{}, err
	}
	rov, err := r.rover(ctx, p.RoverID)
	if err != nil {
		return Projection{}, err
	}

	proj := Projection{
		ID:              p.ID,
		Sol:             p.Sol,
		EarthDate:       p.EarthDate.Format("2006-01-02"),
		ImgSrc:          p.Images.Full,
		CameraShortName: cam.ShortName,
		RoverName:       rov.Name,
	}
	if fs == FieldSetBasic {
		return proj, nil
	}

	proj.NASAID = p.ExternalID
	if p.Width != nil && p.Height != nil && *p.Height != 0 {
		proj.Dimensions = &Dimensions{
			Width: *p.Width, Height: *p.Height,
			AspectRatio: float64(*p.Width) / float64(*p.Height),
		}
	}
	proj.Location = &LocationView{Site: p.Site, Drive: p.Drive}
	proj.MarsTime = p.MarsLocalTime
	proj.Telemetry = &TelemetryView{MastAz: p.MastAz, MastEl: p.MastEl}
	proj.SampleType = p.SampleType
	proj.Images = &ImagesView{
		Thumbnail: p.Images.Thumbnail, Small: p.Images.Small,
		Medium: p.Images.Medium, Full: p.Images.Full,
	}
	proj.Title = p.Title
	proj.Caption = p.Caption
	proj.Credit = p.Credit

	if fs == FieldSetFull {
		proj.RawData = p.Raw
	}
	return proj, nil
}

// ProjectAll projects every photo in photos into fs's shape, in order.
func (r *Resolver) ProjectAll(ctx context.Context, photos []rovercore.Photo, fs FieldSet) ([]Projection, error) {
	out := make([]Projection, len(photos))
	for i, p := range photos {
		proj, err := r.Project(ctx, p, fs)
		if err != nil {
			return nil, err
		}
		out[i] = proj
	}
	return out, nil
}
