package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

// FeatureService stores project features in DuckDB.
//
// Geometries are kept in the lat/lng order the renderer consumes; Import
// converts from standard GeoJSON on the way in.
type FeatureService struct {
	db  *sql.DB
	bus *EventBus
}

// NewFeatureService creates a feature service over an opened database.
func NewFeatureService(db *sql.DB, bus *EventBus) *FeatureService {
	return &FeatureService{db: db, bus: bus}
}

// Import upserts the features of a standard (lng/lat) GeoJSON collection into
// a project and returns how many were stored. Features without an id get one.
func (s *FeatureService) Import(ctx context.Context, project string, fc *geojson.FeatureCollection) (int, error) {
	if fc == nil {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO features
		(project, id, feature_type, status, title, geometry, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, f := range fc.Features {
		feat, err := fromGeoJSON(f)
		if err != nil {
			return 0, err
		}
		geom, err := json.Marshal(feat.Geometry)
		if err != nil {
			return 0, fmt.Errorf("feature %s geometry: %w", feat.ID, err)
		}
		props, err := json.Marshal(feat.Properties)
		if err != nil {
			return 0, fmt.Errorf("feature %s properties: %w", feat.ID, err)
		}
		p := feat.Properties
		if _, err := stmt.ExecContext(ctx, project, feat.ID, p.FeatureType.Slug, p.Status.Value, p.Title, string(geom), string(props)); err != nil {
			return 0, fmt.Errorf("insert feature %s: %w", feat.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	s.bus.Publish(Event{Resource: "features", Action: "created", ID: project})
	return n, nil
}

// fromGeoJSON converts a standard GeoJSON feature into the project feed shape.
func fromGeoJSON(f *geojson.Feature) (maputil.Feature, error) {
	var feat maputil.Feature

	raw, err := json.Marshal(f.Properties)
	if err != nil {
		return feat, fmt.Errorf("feature properties: %w", err)
	}
	if err := json.Unmarshal(raw, &feat.Properties); err != nil {
		return feat, fmt.Errorf("feature properties: %w: %v", ErrInvalid, err)
	}

	switch {
	case f.ID != nil:
		feat.ID = fmt.Sprint(f.ID)
	case f.Properties["id"] != nil:
		feat.ID = fmt.Sprint(f.Properties["id"])
	default:
		feat.ID = uuid.NewString()
	}

	if f.Geometry != nil {
		feat.Geometry = geojson.NewGeometry(maputil.SwapAxes(f.Geometry))
	}
	return feat, nil
}

// List returns a page of a project's features passing filter, plus the
// total number of matches.
func (s *FeatureService) List(ctx context.Context, project string, filter *maputil.Filter, offset, limit int) ([]maputil.Feature, int, error) {
	where, args := whereClause(project, filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM features"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count features: %w", err)
	}

	query := "SELECT id, geometry, properties FROM features" + where + " ORDER BY imported_at, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(offset, 0))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	features := []maputil.Feature{}
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, 0, err
		}
		features = append(features, f)
	}
	return features, total, rows.Err()
}

// All returns every feature of a project passing filter.
func (s *FeatureService) All(ctx context.Context, project string, filter *maputil.Filter) ([]maputil.Feature, error) {
	features, _, err := s.List(ctx, project, filter, 0, 0)
	return features, err
}

// Get returns one feature.
func (s *FeatureService) Get(ctx context.Context, project, id string) (maputil.Feature, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, geometry, properties FROM features WHERE project = ? AND id = ?", project, id)
	f, err := scanFeature(row)
	if err == sql.ErrNoRows {
		return f, fmt.Errorf("feature %s: %w", id, ErrNotFound)
	}
	return f, err
}

// Delete removes one feature.
func (s *FeatureService) Delete(ctx context.Context, project, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM features WHERE project = ? AND id = ?", project, id)
	if err != nil {
		return fmt.Errorf("delete feature %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("feature %s: %w", id, ErrNotFound)
	}
	s.bus.Publish(Event{Resource: "features", Action: "deleted", ID: id})
	return nil
}

// Types returns the distinct feature types of a project, by slug.
func (s *FeatureService) Types(ctx context.Context, project string) ([]maputil.FeatureType, error) {
	features, err := s.All(ctx, project, nil)
	if err != nil {
		return nil, err
	}
	seen := map[string]maputil.FeatureType{}
	for _, f := range features {
		ft := f.Properties.FeatureType
		if ft.Slug != "" {
			seen[ft.Slug] = ft
		}
	}
	out := make([]maputil.FeatureType, 0, len(seen))
	for _, ft := range seen {
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// whereClause pushes the renderer's filter semantics down into SQL: only
// set fields constrain, and the title matches by substring.
func whereClause(project string, filter *maputil.Filter) (string, []any) {
	conds := []string{"project = ?"}
	args := []any{project}
	if filter.Active() {
		if filter.FeatureType != "" {
			conds = append(conds, "feature_type = ?")
			args = append(args, filter.FeatureType)
		}
		if filter.FeatureStatus != "" {
			conds = append(conds, "status = ?")
			args = append(args, filter.FeatureStatus)
		}
		if filter.FeatureTitle != "" {
			conds = append(conds, "contains(title, ?)")
			args = append(args, filter.FeatureTitle)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeature(row scanner) (maputil.Feature, error) {
	var (
		f     maputil.Feature
		geom  sql.NullString
		props string
	)
	if err := row.Scan(&f.ID, &geom, &props); err != nil {
		if err == sql.ErrNoRows {
			return f, err
		}
		return f, fmt.Errorf("scan feature: %w", err)
	}
	if geom.Valid && geom.String != "null" {
		f.Geometry = &geojson.Geometry{}
		if err := json.Unmarshal([]byte(geom.String), f.Geometry); err != nil {
			return f, fmt.Errorf("feature %s geometry: %w", f.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(props), &f.Properties); err != nil {
		return f, fmt.Errorf("feature %s properties: %w", f.ID, err)
	}
	return f, nil
}
