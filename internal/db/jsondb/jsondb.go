// Package jsondb is a file-backed bookmark store. The whole data set lives
// in memory and is rewritten to a JSON file after every mutation.
package jsondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

type JSONDB struct {
	mu       sync.RWMutex
	fileName string
	Cache    CacheStruct
}

// CacheStruct is the on-disk layout. Bookmarks are kept in insertion order.
type CacheStruct struct {
	Users           map[string]*user.User
	IdentityToUser  map[string]string
	SessionVersions map[string]int64
	Bookmarks       []models.Bookmark
}

// NewCache returns an empty data set.
func NewCache() CacheStruct {
	return CacheStruct{
		Users:           map[string]*user.User{},
		IdentityToUser:  map[string]string{},
		SessionVersions: map[string]int64{},
		Bookmarks:       []models.Bookmark{},
	}
}

// NewInMemory returns a store that never touches the filesystem.
func NewInMemory() *JSONDB {
	return &JSONDB{Cache: NewCache()}
}

func (db *JSONDB) CommitTransaction(transaction *sql.Tx) error {
	return nil
}

func (db *JSONDB) RollbackTransaction(transaction *sql.Tx) error {
	return nil
}

func (db *JSONDB) BeginTransaction() (*sql.Tx, error) {
	return nil, nil
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// New loads fileName, creating it when it does not exist yet.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache:    NewCache(),
	}

	err := parseJSONFile(fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `parseJSONFile()` calling: %w", err)
		}
		if err := writeToJSONFile(fileName, db.Cache); err != nil {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `writeToJSONFile()` calling: %w", err)
		}
	}

	if db.Cache.Users == nil {
		db.Cache.Users = map[string]*user.User{}
	}
	if db.Cache.IdentityToUser == nil {
		db.Cache.IdentityToUser = map[string]string{}
	}
	if db.Cache.SessionVersions == nil {
		db.Cache.SessionVersions = map[string]int64{}
	}

	return db, nil
}

func (db *JSONDB) flush() error {
	if db.fileName == "" {
		return nil
	}

	return writeToJSONFile(db.fileName, db.Cache)
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.flush()
}

func identityKey(identity user.Identity) string {
	return identity.Provider + "\x00" + identity.ProviderUserID
}

func (db *JSONDB) UpsertUserByIdentity(
	ctx context.Context,
	identity user.Identity,
	transaction *sql.Tx,
) (*user.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := identityKey(identity)
	if userID, ok := db.Cache.IdentityToUser[key]; ok {
		usr := db.Cache.Users[userID]
		usr.Email = identity.Email
		copied := *usr
		copied.SessionVersion = db.Cache.SessionVersions[userID]
		return &copied, db.flush()
	}

	usr := &user.User{
		ID:             uuid.NewString(),
		Email:          identity.Email,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		CreatedAt:      time.Now().UTC(),
	}
	db.Cache.Users[usr.ID] = usr
	db.Cache.IdentityToUser[key] = usr.ID

	copied := *usr
	return &copied, db.flush()
}

func (db *JSONDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, ok := db.Cache.Users[userID]
	if !ok {
		return &user.User{ID: ""}, nil
	}

	copied := *usr
	copied.SessionVersion = db.Cache.SessionVersions[userID]
	return &copied, nil
}

func (db *JSONDB) RevokeSessions(ctx context.Context, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.Cache.Users[userID]; !ok {
		return nil
	}
	db.Cache.SessionVersions[userID]++

	return db.flush()
}

func (db *JSONDB) InsertBookmark(
	ctx context.Context,
	bookmark *models.Bookmark,
	transaction *sql.Tx,
) (*models.Bookmark, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.Cache.Users[bookmark.UserID]; !ok {
		return nil, models.ErrUserNotFound
	}

	stored := *bookmark
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	db.Cache.Bookmarks = append(db.Cache.Bookmarks, stored)

	return &stored, db.flush()
}

func (db *JSONDB) DeleteBookmark(
	ctx context.Context,
	userID string,
	bookmarkID string,
	transaction *sql.Tx,
) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	index := -1
	for i, bookmark := range db.Cache.Bookmarks {
		if bookmark.ID == bookmarkID && bookmark.UserID == userID {
			index = i
			break
		}
	}
	if index < 0 {
		return false, nil
	}

	db.Cache.Bookmarks = append(db.Cache.Bookmarks[:index:index], db.Cache.Bookmarks[index+1:]...)

	return true, db.flush()
}

func (db *JSONDB) GetBookmarksByOwner(ctx context.Context, userID string) (models.Bookmarks, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owned := funk.Filter(db.Cache.Bookmarks, func(bookmark models.Bookmark) bool {
		return bookmark.UserID == userID
	}).([]models.Bookmark)

	result := make(models.Bookmarks, 0, len(owned))
	for i := len(owned) - 1; i >= 0; i-- {
		result = append(result, owned[i])
	}

	return result, nil
}

func (db *JSONDB) GetNumberOfBookmarks(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Bookmarks)), nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}
