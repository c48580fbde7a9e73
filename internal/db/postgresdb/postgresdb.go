// Package postgresdb provides a PostgreSQL-based implementation of the storage interface
// for persisting users and their bookmarks.
// It supports transactional operations and owner-scoped queries; row changes are
// announced by a database trigger and picked up by Listener.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

const foreignKeyViolation = "23503"

// PostgresDB is a PostgreSQL-backed bookmark storage.
// It handles all persistence operations via a PostgreSQL database connection.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

func (db *PostgresDB) queryer(transaction *sql.Tx) queryer {
	if transaction == nil {
		return db.database
	}

	return transaction
}

func (db *PostgresDB) executor(transaction *sql.Tx) executor {
	if transaction == nil {
		return db.database
	}

	return transaction
}

// UpsertUserByIdentity creates the user on first sign-in and refreshes the
// stored email on later ones.
func (db *PostgresDB) UpsertUserByIdentity(
	ctx context.Context,
	identity user.Identity,
	transaction *sql.Tx,
) (*user.User, error) {
	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`
			INSERT INTO users (provider, provider_user_id, email)
				VALUES ($1, $2, $3)
				ON CONFLICT (provider, provider_user_id) DO UPDATE
				SET email = EXCLUDED.email
				RETURNING id, email, provider, provider_user_id, created_at, session_version
		`,
		identity.Provider,
		identity.ProviderUserID,
		identity.Email,
	)

	result := &user.User{}
	err := row.Scan(
		&result.ID,
		&result.Email,
		&result.Provider,
		&result.ProviderUserID,
		&result.CreatedAt,
		&result.SessionVersion,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/UpsertUserByIdentity(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return result, nil
}

// GetUserByID fetches a user by their UUID from the database.
// If the user does not exist, it returns a user with an empty ID field.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error) {
	if userID == "" {
		return &user.User{ID: ""}, nil
	}

	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`
			SELECT id, email, provider, provider_user_id, created_at, session_version
				FROM users
				WHERE id::text = $1
		`,
		userID,
	)

	result := &user.User{}
	err := row.Scan(
		&result.ID,
		&result.Email,
		&result.Provider,
		&result.ProviderUserID,
		&result.CreatedAt,
		&result.SessionVersion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &user.User{ID: ""}, nil
		}
		return &user.User{ID: ""}, err
	}

	return result, nil
}

func (db *PostgresDB) RevokeSessions(ctx context.Context, userID string) error {
	_, err := db.database.ExecContext(
		ctx,
		`UPDATE users SET session_version = session_version + 1 WHERE id::text = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/RevokeSessions(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}

	return nil
}

// InsertBookmark stores a bookmark and returns it with the generated id and
// creation time.
func (db *PostgresDB) InsertBookmark(
	ctx context.Context,
	bookmark *models.Bookmark,
	transaction *sql.Tx,
) (*models.Bookmark, error) {
	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`
			INSERT INTO bookmarks (title, url, user_id)
				VALUES ($1, $2, $3)
				RETURNING id, title, url, user_id, created_at
		`,
		bookmark.Title,
		bookmark.URL,
		bookmark.UserID,
	)

	result := &models.Bookmark{}
	err := row.Scan(&result.ID, &result.Title, &result.URL, &result.UserID, &result.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/InsertBookmark(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return result, nil
}

// DeleteBookmark removes a bookmark only when it belongs to userID.
func (db *PostgresDB) DeleteBookmark(
	ctx context.Context,
	userID string,
	bookmarkID string,
	transaction *sql.Tx,
) (bool, error) {
	result, err := db.executor(transaction).ExecContext(
		ctx,
		`DELETE FROM bookmarks WHERE id::text = $1 AND user_id::text = $2`,
		bookmarkID,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/DeleteBookmark(): error while `ExecContext()` calling: %w",
			err,
		)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// GetBookmarksByOwner returns the owner's bookmarks, newest first.
func (db *PostgresDB) GetBookmarksByOwner(ctx context.Context, userID string) (models.Bookmarks, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT id, title, url, user_id, created_at
				FROM bookmarks
				WHERE user_id::text = $1
				ORDER BY created_at DESC, id
		`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := models.Bookmarks{}
	for rows.Next() {
		var bookmark models.Bookmark
		err = rows.Scan(&bookmark.ID, &bookmark.Title, &bookmark.URL, &bookmark.UserID, &bookmark.CreatedAt)
		if err != nil {
			return nil, err
		}

		result = append(result, bookmark)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, err
	}

	return result, nil
}

func (db *PostgresDB) GetNumberOfBookmarks(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM bookmarks`)
}

func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// CommitTransaction commits the given SQL transaction.
// Returns an error if the commit operation fails.
func (db *PostgresDB) CommitTransaction(transaction *sql.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

// RollbackTransaction rolls back the given SQL transaction.
func (db *PostgresDB) RollbackTransaction(transaction *sql.Tx) error {
	return transaction.Rollback()
}

// BeginTransaction starts a new SQL transaction and returns it.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction() (*sql.Tx, error) {
	return db.database.Begin()
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
				DROP FUNCTION IF EXISTS notify_bookmark_changes() CASCADE;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
