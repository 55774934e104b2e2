package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB is the PostgreSQL backed Store.
type DB struct {
	connection *sql.DB
	log        *zap.Logger
	// hasIndexTable is false when the pgvector migration could not run.
	hasIndexTable bool
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewDB(ctx context.Context, dataSourceName string, log *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Connection pool tuning
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	out := &DB{connection: db, log: log.Named("storage")}
	if err := out.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return out, nil
}

func (db *DB) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := db.connection.ExecContext(ctx, string(data)); err != nil {
			if strings.Contains(entry.Name(), "candidate_index") {
				db.log.Warn("pgvector migration failed (extension may not be installed)",
					zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		if strings.Contains(entry.Name(), "candidate_index") {
			db.hasIndexTable = true
		}
	}
	return nil
}

func (db *DB) Close() error {
	if err := db.connection.Close(); err != nil {
		db.log.Error("closing the database connection", zap.Error(err))
		return err
	}
	return nil
}

// GetConnection returns the underlying database connection for advanced queries
func (db *DB) GetConnection() *sql.DB {
	return db.connection
}

// HasIndexTable reports whether the candidate_index table is available.
func (db *DB) HasIndexTable() bool {
	return db.hasIndexTable
}

func (db *DB) GetCandidate(ctx context.Context, id string) (*CandidateRecord, error) {
	return getCandidate(ctx, db.connection, id)
}

func (db *DB) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	return findByFingerprint(ctx, db.connection, fingerprint)
}

func (db *DB) FindByIdentityKey(ctx context.Context, kind, value string) ([]string, error) {
	return findByIdentityKey(ctx, db.connection, kind, value)
}

func (db *DB) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := db.connection.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{tx: sqlTx, hasIndexTable: db.hasIndexTable}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			db.log.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListCandidates returns candidates ordered by most recent update.
func (db *DB) ListCandidates(ctx context.Context, f ListFilter, p Pagination) ([]*CandidateRecord, int, error) {
	var where []string
	var args []any
	i := 1

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", i))
		args = append(args, string(f.Status))
		i++
	}
	if f.UpdatedSince != nil {
		where = append(where, fmt.Sprintf("updated_at >= $%d", i))
		args = append(args, *f.UpdatedSince)
		i++
	}
	if len(f.IDs) > 0 {
		where = append(where, fmt.Sprintf("id = ANY($%d)", i))
		args = append(args, pq.Array(f.IDs))
		i++
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.connection.QueryRowContext(ctx, "SELECT COUNT(*) FROM candidates"+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count candidates: %w", err)
	}

	query := "SELECT id FROM candidates" + cond + " ORDER BY updated_at DESC, id ASC"
	if p.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, p.Limit)
		i++
	}
	if p.Skip > 0 {
		query += fmt.Sprintf(" OFFSET $%d", i)
		args = append(args, p.Skip)
	}

	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list candidates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	out := make([]*CandidateRecord, 0, len(ids))
	for _, id := range ids {
		c, err := getCandidate(ctx, db.connection, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, nil
}

func (db *DB) ListAudit(ctx context.Context, entityID string) ([]AuditEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, changes, actor, created_at FROM audit_log`
	var args []any
	if entityID != "" {
		query += ` WHERE entity_id = $1`
		args = append(args, entityID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &changes, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode audit changes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := db.connection.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM candidates),
			(SELECT COUNT(*) FROM resumes),
			(SELECT COUNT(*) FROM candidates WHERE status = 'active')
	`).Scan(&st.TotalCandidates, &st.TotalResumes, &st.ActiveCandidates)
	return st, err
}

type pgTx struct {
	tx            *sql.Tx
	hasIndexTable bool
}

func (t *pgTx) GetCandidate(ctx context.Context, id string) (*CandidateRecord, error) {
	return getCandidate(ctx, t.tx, id)
}

func (t *pgTx) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	return findByFingerprint(ctx, t.tx, fingerprint)
}

func (t *pgTx) FindByIdentityKey(ctx context.Context, kind, value string) ([]string, error) {
	return findByIdentityKey(ctx, t.tx, kind, value)
}

func (t *pgTx) SaveCandidate(ctx context.Context, c *CandidateRecord) error {
	if c.Revision <= 1 {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO candidates (id, name, email, phone, location, status, years_experience,
				current_title, current_company, skills, education_level, revision, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			c.ID, c.Name, c.Email, c.Phone, c.Location, string(c.Status), c.YearsExperience,
			c.CurrentTitle, c.CurrentCompany, pq.Array(c.Skills), c.EducationLevel, c.Revision,
			c.CreatedAt, c.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fmt.Errorf("%w: %s already exists", ErrConflict, c.ID)
			}
			return fmt.Errorf("insert candidate: %w", err)
		}
	} else {
		res, err := t.tx.ExecContext(ctx, `
			UPDATE candidates
			SET name = $2, email = $3, phone = $4, location = $5, status = $6, years_experience = $7,
			    current_title = $8, current_company = $9, skills = $10, education_level = $11,
			    revision = $12, updated_at = $13
			WHERE id = $1 AND revision = $14`,
			c.ID, c.Name, c.Email, c.Phone, c.Location, string(c.Status), c.YearsExperience,
			c.CurrentTitle, c.CurrentCompany, pq.Array(c.Skills), c.EducationLevel,
			c.Revision, c.UpdatedAt, c.Revision-1)
		if err != nil {
			return fmt.Errorf("update candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM candidates WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %s expected revision %d", ErrConflict, c.ID, c.Revision-1)
		}
	}

	if err := t.deleteChildren(ctx, c.ID); err != nil {
		return err
	}
	return t.insertChildren(ctx, c)
}

// childTables lists every collection a candidate owns.
var childTables = []string{
	"candidate_identity_keys",
	"resumes",
	"experience_entries",
	"project_entries",
	"education_entries",
}

func (t *pgTx) deleteChildren(ctx context.Context, id string) error {
	for _, table := range childTables {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE candidate_id = $1", id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (t *pgTx) insertChildren(ctx context.Context, c *CandidateRecord) error {
	for _, k := range c.IdentityKeys {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO candidate_identity_keys (candidate_id, kind, value) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			c.ID, k.Kind, k.Value); err != nil {
			return fmt.Errorf("insert identity key: %w", err)
		}
	}
	for _, r := range c.Resumes {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO resumes (id, candidate_id, fingerprint, source, file_kind, filename, uri, size_bytes, skills, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, c.ID, r.Fingerprint, r.Source, r.FileKind, r.Filename, r.URI, r.SizeBytes,
			pq.Array(r.Skills), r.CreatedAt); err != nil {
			return fmt.Errorf("insert resume: %w", err)
		}
	}
	for i, e := range c.Experience {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO experience_entries (candidate_id, position, company, title, description, skills, start_date, end_date, is_current)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, i, e.Company, e.Title, e.Description, pq.Array(e.Skills),
			nullDate(e.Start), nullEnd(e.End), e.Current); err != nil {
			return fmt.Errorf("insert experience: %w", err)
		}
	}
	for i, p := range c.Projects {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO project_entries (candidate_id, position, name, role, description, skills, start_date, end_date, is_current)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, i, p.Name, p.Role, p.Description, pq.Array(p.Skills),
			nullDate(p.Start), nullEnd(p.End), p.Current); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
	}
	for i, e := range c.Education {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO education_entries (candidate_id, position, school, degree, field, description, skills, start_date, end_date, is_current)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, i, e.School, e.Degree, e.Field, e.Description, pq.Array(e.Skills),
			nullDate(e.Start), nullEnd(e.End), e.Current); err != nil {
			return fmt.Errorf("insert education: %w", err)
		}
	}
	return nil
}

// DeleteCandidate removes every owned collection, the index row and the candidate itself.
func (t *pgTx) DeleteCandidate(ctx context.Context, id string) error {
	if err := t.deleteChildren(ctx, id); err != nil {
		return err
	}
	if t.hasIndexTable {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM candidate_index WHERE candidate_id = $1`, id); err != nil {
			return fmt.Errorf("delete candidate_index: %w", err)
		}
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, e AuditEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("encode audit changes: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, action, changes, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.EntityType, e.EntityID, e.Action, changes, e.Actor, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func findByFingerprint(ctx context.Context, q querier, fingerprint string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT candidate_id FROM resumes WHERE fingerprint = $1`, fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func findByIdentityKey(ctx context.Context, q querier, kind, value string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT candidate_id FROM candidate_identity_keys WHERE kind = $1 AND value = $2 ORDER BY candidate_id`,
		kind, value)
	if err != nil {
		return nil, fmt.Errorf("find by %s: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getCandidate(ctx context.Context, q querier, id string) (*CandidateRecord, error) {
	c := &CandidateRecord{}
	var status string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, email, phone, location, status, years_experience, current_title,
		       current_company, skills, education_level, revision, created_at, updated_at
		FROM candidates WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Location, &status, &c.YearsExperience, &c.CurrentTitle,
		&c.CurrentCompany, pq.Array(&c.Skills), &c.EducationLevel, &c.Revision, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	c.Status = CandidateStatus(status)

	if err := loadIdentityKeys(ctx, q, c); err != nil {
		return nil, err
	}
	if err := loadResumes(ctx, q, c); err != nil {
		return nil, err
	}
	if err := loadExperience(ctx, q, c); err != nil {
		return nil, err
	}
	if err := loadProjects(ctx, q, c); err != nil {
		return nil, err
	}
	if err := loadEducation(ctx, q, c); err != nil {
		return nil, err
	}
	return c, nil
}

func loadIdentityKeys(ctx context.Context, q querier, c *CandidateRecord) error {
	rows, err := q.QueryContext(ctx,
		`SELECT kind, value FROM candidate_identity_keys WHERE candidate_id = $1 ORDER BY kind, value`, c.ID)
	if err != nil {
		return fmt.Errorf("load identity keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k IdentityKey
		if err := rows.Scan(&k.Kind, &k.Value); err != nil {
			return err
		}
		c.IdentityKeys = append(c.IdentityKeys, k)
	}
	return rows.Err()
}

func loadResumes(ctx context.Context, q querier, c *CandidateRecord) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, fingerprint, source, file_kind, filename, uri, size_bytes, skills, created_at
		FROM resumes WHERE candidate_id = $1 ORDER BY created_at, id`, c.ID)
	if err != nil {
		return fmt.Errorf("load resumes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r ResumeRef
		if err := rows.Scan(&r.ID, &r.Fingerprint, &r.Source, &r.FileKind, &r.Filename, &r.URI,
			&r.SizeBytes, pq.Array(&r.Skills), &r.CreatedAt); err != nil {
			return err
		}
		c.Resumes = append(c.Resumes, r)
	}
	return rows.Err()
}

func loadExperience(ctx context.Context, q querier, c *CandidateRecord) error {
	rows, err := q.QueryContext(ctx, `
		SELECT company, title, description, skills, start_date, end_date, is_current
		FROM experience_entries WHERE candidate_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return fmt.Errorf("load experience: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e ExperienceEntry
		var start, end sql.NullTime
		if err := rows.Scan(&e.Company, &e.Title, &e.Description, pq.Array(&e.Skills), &start, &end, &e.Current); err != nil {
			return err
		}
		e.Period = periodFrom(start, end, e.Current)
		c.Experience = append(c.Experience, e)
	}
	return rows.Err()
}

func loadProjects(ctx context.Context, q querier, c *CandidateRecord) error {
	rows, err := q.QueryContext(ctx, `
		SELECT name, role, description, skills, start_date, end_date, is_current
		FROM project_entries WHERE candidate_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ProjectEntry
		var start, end sql.NullTime
		if err := rows.Scan(&p.Name, &p.Role, &p.Description, pq.Array(&p.Skills), &start, &end, &p.Current); err != nil {
			return err
		}
		p.Period = periodFrom(start, end, p.Current)
		c.Projects = append(c.Projects, p)
	}
	return rows.Err()
}

func loadEducation(ctx context.Context, q querier, c *CandidateRecord) error {
	rows, err := q.QueryContext(ctx, `
		SELECT school, degree, field, description, skills, start_date, end_date, is_current
		FROM education_entries WHERE candidate_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return fmt.Errorf("load education: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e EducationEntry
		var start, end sql.NullTime
		if err := rows.Scan(&e.School, &e.Degree, &e.Field, &e.Description, pq.Array(&e.Skills), &start, &end, &e.Current); err != nil {
			return err
		}
		e.Period = periodFrom(start, end, e.Current)
		c.Education = append(c.Education, e)
	}
	return rows.Err()
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullEnd(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func periodFrom(start, end sql.NullTime, current bool) Period {
	p := Period{Current: current}
	if start.Valid {
		p.Start = start.Time.UTC()
	}
	if end.Valid {
		e := end.Time.UTC()
		p.End = &e
	}
	return p
}
