package metaclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"mdxgrid/evaluator/internal/domain"
)

// PostgresBulkLoader satisfies metacache.MetaClient straight off the
// metadata warehouse's members/levels tables, bypassing the gRPC
// facade entirely. It's wired in as an alternative MetaCache seed path
// for deployments that colocate the evaluator with the metadata
// database, adapted from the teacher's prepared-statement Postgres
// resolver.
type PostgresBulkLoader struct {
	db      *sql.DB
	timeout time.Duration

	allMembersStmt *sql.Stmt
	allLevelsStmt  *sql.Stmt
}

func NewPostgresBulkLoader(db *sql.DB, timeout time.Duration) (*PostgresBulkLoader, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	l := &PostgresBulkLoader{db: db, timeout: timeout}

	var err error
	l.allMembersStmt, err = db.Prepare(`
		SELECT gid, name, level_gid, level_ordinal, parent_gid, measure_index, leaf, full_path
		FROM olap_members
		ORDER BY gid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("metaclient: prepare allMembersStmt: %w", err)
	}

	l.allLevelsStmt, err = db.Prepare(`
		SELECT gid, name, ordinal, dimension_gid, hierarchy_gid, opening_period_gid, closing_period_gid
		FROM olap_levels
		ORDER BY gid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("metaclient: prepare allLevelsStmt: %w", err)
	}

	return l, nil
}

func (l *PostgresBulkLoader) Close() error {
	if err := l.allMembersStmt.Close(); err != nil {
		return err
	}
	return l.allLevelsStmt.Close()
}

func (l *PostgresBulkLoader) AllMembers(ctx context.Context) ([]domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.allMembersStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("metaclient: AllMembers query: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var (
			gid, levelGid, parentGid int64
			levelOrdinal, measureIdx int
			leaf                     bool
			name                     string
			fullPath                 pqInt64Array
		)
		if err := rows.Scan(&gid, &name, &levelGid, &levelOrdinal, &parentGid, &measureIdx, &leaf, &fullPath); err != nil {
			return nil, fmt.Errorf("metaclient: AllMembers scan: %w", err)
		}
		path := make([]domain.Gid, len(fullPath))
		for i, g := range fullPath {
			path[i] = domain.Gid(g)
		}
		out = append(out, domain.Member{
			Gid:          domain.Gid(gid),
			Name:         name,
			LevelGid:     domain.Gid(levelGid),
			LevelOrdinal: levelOrdinal,
			ParentGid:    domain.Gid(parentGid),
			MeasureIndex: measureIdx,
			Leaf:         leaf,
			FullPath:     path,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metaclient: AllMembers rows: %w", err)
	}
	return out, nil
}

func (l *PostgresBulkLoader) AllLevels(ctx context.Context) ([]domain.Level, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.allLevelsStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("metaclient: AllLevels query: %w", err)
	}
	defer rows.Close()

	var out []domain.Level
	for rows.Next() {
		var (
			gid, dimGid, hierGid, openGid, closeGid int64
			ordinal                                 int
			name                                     string
		)
		if err := rows.Scan(&gid, &name, &ordinal, &dimGid, &hierGid, &openGid, &closeGid); err != nil {
			return nil, fmt.Errorf("metaclient: AllLevels scan: %w", err)
		}
		out = append(out, domain.Level{
			Gid:              domain.Gid(gid),
			Name:             name,
			Ordinal:          ordinal,
			DimensionGid:     domain.Gid(dimGid),
			HierarchyGid:     domain.Gid(hierGid),
			OpeningPeriodGid: domain.Gid(openGid),
			ClosingPeriodGid: domain.Gid(closeGid),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metaclient: AllLevels rows: %w", err)
	}
	return out, nil
}

// pqInt64Array scans a Postgres bigint[] column, mirroring the
// teacher's pqStringArray helper for the inverse direction.
type pqInt64Array []int64

func (a *pqInt64Array) Scan(src any) error {
	if src == nil {
		*a = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return parsePgBigintArray(string(v), a)
	case string:
		return parsePgBigintArray(v, a)
	default:
		return fmt.Errorf("metaclient: unsupported bigint[] source type %T", src)
	}
}

func parsePgBigintArray(s string, out *pqInt64Array) error {
	s = trimBraces(s)
	if s == "" {
		*out = pqInt64Array{}
		return nil
	}
	var result pqInt64Array
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			var n int64
			if _, err := fmt.Sscanf(s[start:i], "%d", &n); err != nil {
				return fmt.Errorf("metaclient: parsing bigint[] element %q: %w", s[start:i], err)
			}
			result = append(result, n)
			start = i + 1
		}
	}
	*out = result
	return nil
}

func trimBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1]
	}
	return s
}
