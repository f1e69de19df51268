package postgres

import (
	"fmt"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"

	"github.com/marsphotos/rovercore/datastore"
)

var psql = goqu.Dialect("postgres")

const photoColumns = `p.id, p.external_id, p.rover_id, p.camera_id, p.sol, p.earth_date, p.taken_utc,
	p.mars_local_time, p.received_utc, p.img_thumbnail, p.img_small, p.img_medium, p.img_full,
	p.width, p.height, p.sample_type, p.site, p.drive, p.xyz, p.mast_az, p.mast_el, p.filter_name,
	p.title, p.caption, p.credit, p.raw, p.created_at, p.updated_at`

// buildPhotosQuery constructs the filter/sort/paginate SQL backing the
// photo search endpoints.
//
// Every optional predicate is AND'd together in a single expression list.
// The two-phase filter semantics (date predicate applied before the camera
// predicate) falls out of plain conjunction for free: if the date predicate
// matches zero rows, ANDing in the camera predicate still matches zero
// rows, so no special-cased short-circuit is required.
func buildPhotosQuery(filter datastore.Filter, sort datastore.Sort, page datastore.Page) (selectSQL string, countSQL string, args []interface{}, err error) {
	exps, err := filterExpressions(filter)
	if err != nil {
		return "", "", nil, err
	}

	base := psql.From(goqu.T("photos").As("p")).
		Join(goqu.T("rovers").As("r"), goqu.On(goqu.Ex{"p.rover_id": goqu.I("r.id")})).
		Join(goqu.T("cameras").As("c"), goqu.On(goqu.Ex{"p.camera_id": goqu.I("c.id")})).
		Where(exps...)

	countDS := base.Select(goqu.COUNT(goqu.Star()))
	countSQL, _, err = countDS.ToSQL()
	if err != nil {
		return "", "", nil, fmt.Errorf("build count query: %w", err)
	}

	orderExps, err := orderExpressions(sort)
	if err != nil {
		return "", "", nil, err
	}

	perPage := page.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page.Page - 1) * perPage
	if offset < 0 {
		offset = 0
	}

	selectDS := base.
		SelectLiteral(goqu.L(photoColumns)).
		Order(orderExps...).
		Limit(uint(perPage)).
		Offset(uint(offset))
	selectSQL, _, err = selectDS.ToSQL()
	if err != nil {
		return "", "", nil, fmt.Errorf("build select query: %w", err)
	}
	return selectSQL, countSQL, nil, nil
}

func filterExpressions(f datastore.Filter) ([]goqu.Expression, error) {
	var exps []goqu.Expression

	if f.RoverID != nil {
		exps = append(exps, goqu.Ex{"p.rover_id": *f.RoverID})
	}
	if f.RoverName != "" {
		exps = append(exps, goqu.L("lower(r.name) = lower(?)", f.RoverName))
	}
	if len(f.Rovers) > 0 {
		lowered := make([]string, len(f.Rovers))
		for i, n := range f.Rovers {
			lowered[i] = normalizeRoverName(n)
		}
		exps = append(exps, goqu.L("lower(r.name)").In(lowered))
	}

	// Date predicate phase. Sol takes precedence over earth_date when both
	// are present.
	switch {
	case f.Sol != nil:
		exps = append(exps, goqu.Ex{"p.sol": *f.Sol})
	case f.EarthDate != nil:
		exps = append(exps, goqu.Ex{"p.earth_date": f.EarthDate.Format("2006-01-02")})
	}
	if f.SolMin != nil {
		exps = append(exps, goqu.Ex{"p.sol": goqu.Op{"gte": *f.SolMin}})
	}
	if f.SolMax != nil {
		exps = append(exps, goqu.Ex{"p.sol": goqu.Op{"lt": *f.SolMax}})
	}
	if f.DateMin != nil {
		exps = append(exps, goqu.Ex{"p.earth_date": goqu.Op{"gte": f.DateMin.Format("2006-01-02")}})
	}
	if f.DateMax != nil {
		exps = append(exps, goqu.Ex{"p.earth_date": goqu.Op{"lt": f.DateMax.Format("2006-01-02")}})
	}

	// Camera predicate phase (applied after date predicate above, by
	// position in the conjunction, to document the two-phase intent even
	// though AND is commutative).
	if f.Camera != "" {
		exps = append(exps, goqu.L("upper(c.short_name) = upper(?)", f.Camera))
	}
	if len(f.Cameras) > 0 {
		uppered := make([]string, len(f.Cameras))
		for i, c := range f.Cameras {
			uppered[i] = upper(c)
		}
		exps = append(exps, goqu.L("upper(c.short_name)").In(uppered))
	}

	if f.NASAID != "" {
		exps = append(exps, goqu.L("p.external_id ILIKE ?", "%"+f.NASAID+"%"))
	}
	if f.Site != nil {
		exps = append(exps, goqu.Ex{"p.site": *f.Site})
	}
	if f.Drive != nil {
		exps = append(exps, goqu.Ex{"p.drive": *f.Drive})
	}
	if f.SampleType != "" {
		exps = append(exps, goqu.Ex{"p.sample_type": f.SampleType})
	}

	return exps, nil
}

func orderExpressions(sort datastore.Sort) ([]goqu.OrderedExpression, error) {
	if sort == "" {
		// Default rover-scoped ordering: (camera_id ASC, id ASC).
		return []goqu.OrderedExpression{goqu.I("p.camera_id").Asc(), goqu.I("p.id").Asc()}, nil
	}
	if !datastore.ValidSorts[sort] {
		return nil, fmt.Errorf("invalid sort value %q", sort)
	}
	col, desc := string(sort), false
	if col[0] == '-' {
		col, desc = col[1:], true
	}
	ident := goqu.I("p." + col)
	if desc {
		return []goqu.OrderedExpression{ident.Desc(), goqu.I("p.id").Asc()}, nil
	}
	return []goqu.OrderedExpression{ident.Asc(), goqu.I("p.id").Asc()}, nil
}

func upper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
