package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/geo"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id              BIGINT PRIMARY KEY,
	lon             DOUBLE PRECISION,
	lat             DOUBLE PRECISION,
	price_total     DOUBLE PRECISION,
	price_unit      DOUBLE PRECISION,
	area_sqm        DOUBLE PRECISION,
	district        TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	layout          TEXT NOT NULL DEFAULT '',
	orientation     TEXT NOT NULL DEFAULT '',
	renovation      TEXT NOT NULL DEFAULT '',
	elevator        TEXT NOT NULL DEFAULT '',
	parking         TEXT NOT NULL DEFAULT '',
	floor           TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT '',
	features        TEXT NOT NULL DEFAULT '',
	selling_points  TEXT NOT NULL DEFAULT '',
	school_district TEXT NOT NULL DEFAULT '',
	preference      TEXT NOT NULL DEFAULT '',
	surroundings    TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS listings_lon_lat_idx ON listings (lon, lat);
CREATE INDEX IF NOT EXISTS listings_district_idx ON listings (district);
`

const listingColumns = `id, lon, lat, price_total, price_unit, area_sqm,
	district, address, layout, orientation, renovation, elevator, parking, floor,
	name, features, selling_points, school_district, preference, surroundings, tags`

// Postgres is a listing store backed by PostgreSQL via lib/pq. It
// implements search.ListingStore.
type Postgres struct {
	db  *sql.DB
	log *slog.Logger
}

// NewPostgres opens the database, waits for it to accept connections, and
// ensures the schema.
func NewPostgres(dsn string, log *slog.Logger) (*Postgres, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		log.Warn("store: postgres not ready, retrying", "attempt", i+1, "err", err)
		time.Sleep(time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

// Close closes the database handle.
func (s *Postgres) Close() error { return s.db.Close() }

// Get returns the listing with the given id.
func (s *Postgres) Get(ctx context.Context, id int64) (domain.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, fmt.Errorf("store: listing %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("store: get listing %d: %w", id, err)
	}
	return l, nil
}

// Query returns listings inside the bounding box (when given) that satisfy
// every condition, translated into a parameterized WHERE clause.
func (s *Postgres) Query(ctx context.Context, box *geo.Box, conds []filter.Condition) ([]domain.Listing, error) {
	where, args := buildWhere(box, conds)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query listings: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces a listing by id.
func (s *Postgres) Upsert(ctx context.Context, l domain.Listing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO UPDATE SET
			lon = EXCLUDED.lon, lat = EXCLUDED.lat,
			price_total = EXCLUDED.price_total, price_unit = EXCLUDED.price_unit,
			area_sqm = EXCLUDED.area_sqm,
			district = EXCLUDED.district, address = EXCLUDED.address,
			layout = EXCLUDED.layout, orientation = EXCLUDED.orientation,
			renovation = EXCLUDED.renovation, elevator = EXCLUDED.elevator,
			parking = EXCLUDED.parking, floor = EXCLUDED.floor,
			name = EXCLUDED.name, features = EXCLUDED.features,
			selling_points = EXCLUDED.selling_points,
			school_district = EXCLUDED.school_district,
			preference = EXCLUDED.preference, surroundings = EXCLUDED.surroundings,
			tags = EXCLUDED.tags,
			updated_at = now()`,
		l.ID, nullable(l.Lon), nullable(l.Lat),
		nullable(l.PriceTotal), nullable(l.PriceUnit), nullable(l.AreaSqm),
		l.District, l.Address, l.Layout, l.Orientation, l.Renovation,
		l.Elevator, l.Parking, l.Floor,
		l.Name, l.Features, l.SellingPoints, l.SchoolDistrict,
		l.Preference, l.Surroundings, l.Tags,
	)
	if err != nil {
		return fmt.Errorf("store: upsert listing %d: %w", l.ID, err)
	}
	return nil
}

// Delete removes a listing. Deleting an absent id is a no-op.
func (s *Postgres) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete listing %d: %w", id, err)
	}
	return nil
}

// Scan invokes fn for every stored listing, stopping on the first error.
func (s *Postgres) Scan(ctx context.Context, fn func(domain.Listing) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY id`)
	if err != nil {
		return fmt.Errorf("store: scan listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return fmt.Errorf("store: scan listing: %w", err)
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (domain.Listing, error) {
	var l domain.Listing
	var lon, lat, priceTotal, priceUnit, area sql.NullFloat64
	err := row.Scan(
		&l.ID, &lon, &lat, &priceTotal, &priceUnit, &area,
		&l.District, &l.Address, &l.Layout, &l.Orientation, &l.Renovation,
		&l.Elevator, &l.Parking, &l.Floor,
		&l.Name, &l.Features, &l.SellingPoints, &l.SchoolDistrict,
		&l.Preference, &l.Surroundings, &l.Tags,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Lon = fromNull(lon)
	l.Lat = fromNull(lat)
	l.PriceTotal = fromNull(priceTotal)
	l.PriceUnit = fromNull(priceUnit)
	l.AreaSqm = fromNull(area)
	return l, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var numericColumns = map[string]bool{
	filter.FieldPriceTotal: true,
	filter.FieldPriceUnit:  true,
	filter.FieldAreaSqm:    true,
}

var stringColumns = map[string]bool{
	filter.FieldDistrict:    true,
	filter.FieldLayout:      true,
	filter.FieldOrientation: true,
	filter.FieldRenovation:  true,
	filter.FieldElevator:    true,
	filter.FieldParking:     true,
	filter.FieldFloor:       true,
	filter.FieldName:        true,
}

// buildWhere translates the bounding box and conditions into a WHERE clause
// with positional args. Only whitelisted canonical field names become
// column references; anything else compiles to FALSE, mirroring the
// absent-field-never-matches rule. Unknown values (NULL, empty string)
// likewise never match.
func buildWhere(box *geo.Box, conds []filter.Condition) (string, []any) {
	var parts []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if box != nil {
		parts = append(parts,
			fmt.Sprintf("lon BETWEEN %s AND %s", arg(box.MinLon), arg(box.MaxLon)),
			fmt.Sprintf("lat BETWEEN %s AND %s", arg(box.MinLat), arg(box.MaxLat)),
		)
	}

	for _, c := range conds {
		switch {
		case c.Op == filter.OpEquals && stringColumns[c.Field] && c.Equals != "":
			parts = append(parts, fmt.Sprintf("%s = %s", c.Field, arg(c.Equals)))

		case c.Op == filter.OpEquals && numericColumns[c.Field]:
			v, err := strconv.ParseFloat(c.Equals, 64)
			if err != nil {
				parts = append(parts, "FALSE")
				continue
			}
			parts = append(parts, fmt.Sprintf("%s = %s", c.Field, arg(v)))

		case c.Op == filter.OpRange && numericColumns[c.Field]:
			bounds := []string{fmt.Sprintf("%s IS NOT NULL", c.Field)}
			if c.Min != nil {
				bounds = append(bounds, fmt.Sprintf("%s >= %s", c.Field, arg(*c.Min)))
			}
			if c.Max != nil {
				bounds = append(bounds, fmt.Sprintf("%s <= %s", c.Field, arg(*c.Max)))
			}
			parts = append(parts, strings.Join(bounds, " AND "))

		case c.Op == filter.OpSetMember && stringColumns[c.Field] && len(c.Set) > 0:
			parts = append(parts, fmt.Sprintf("%s <> '' AND %s = ANY(%s)",
				c.Field, c.Field, arg(pq.Array(c.Set))))

		default:
			parts = append(parts, "FALSE")
		}
	}

	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}
