package data

import (
	"context" // Used for cancellation and timeouts

	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"
	"github.com/PaulBabatuyi/houseye/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"  // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo" // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

func userMeta(username string) map[string]string {
	return map[string]string{"username": username}
}

func errUserNotFound(username string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "user not found", userMeta(username))
}

func errUserExists(username string) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyExists, "user already exists", userMeta(username))
}

// AddUser inserts a new user with status Out. The existence check runs
// first; the unique username index settles concurrent inserts that both
// pass it.
func (u *UsersStore) AddUser(ctx context.Context, username, cellphone, imagePath string) (*User, error) {
	username = normalize.Username(username)
	if username == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "username is required")
	}

	exists, err := u.UserExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errUserExists(username)
	}

	user := &User{
		Username:  username,
		Cellphone: cellphone,
		Image:     normalize.ImagePath(imagePath),
		Status:    StatusOut,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Lost the race against a concurrent AddUser for the same name
		if mongo.IsDuplicateKeyError(err) {
			return nil, errUserExists(username)
		}
		return nil, apperrors.External("insert user", err)
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// UserExists checks if a user exists by username.
func (u *UsersStore) UserExists(ctx context.Context, username string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"username": normalize.Username(username)})
	if err != nil {
		return false, apperrors.External("count users", err)
	}
	return count > 0, nil
}

// GetUserRecord finds the full user document by username.
func (u *UsersStore) GetUserRecord(ctx context.Context, username string) (*User, error) {
	username = normalize.Username(username)
	return u.findOne(ctx, bson.M{"username": username}, func() error { return errUserNotFound(username) })
}

// GetUser returns the stored username, or a NOT_FOUND error.
func (u *UsersStore) GetUser(ctx context.Context, username string) (string, error) {
	user, err := u.GetUserRecord(ctx, username)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// FindUserByImage returns the username whose image field equals imagePath.
func (u *UsersStore) FindUserByImage(ctx context.Context, imagePath string) (string, error) {
	imagePath = normalize.ImagePath(imagePath)
	user, err := u.findOne(ctx, bson.M{"image": imagePath}, func() error {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "no user for image", map[string]string{"path": imagePath})
	})
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// FindCellphone returns the user's cellphone. A user without one is
// reported as NOT_FOUND.
func (u *UsersStore) FindCellphone(ctx context.Context, username string) (string, error) {
	user, err := u.GetUserRecord(ctx, username)
	if err != nil {
		return "", err
	}
	if user.Cellphone == "" {
		return "", apperrors.WithMetadata(apperrors.CodeNotFound, "cellphone not set", userMeta(user.Username))
	}
	return user.Cellphone, nil
}

// ListUsers returns every user in insertion order.
func (u *UsersStore) ListUsers(ctx context.Context) ([]*User, error) {
	cursor, err := u.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperrors.External("list users", err)
	}
	defer cursor.Close(ctx)

	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, apperrors.External("decode users", err)
	}
	return users, nil
}

// ListCellphones projects ListUsers onto the cellphone field, skipping
// users that have none.
func (u *UsersStore) ListCellphones(ctx context.Context) ([]string, error) {
	users, err := u.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	phones := make([]string, 0, len(users))
	for _, user := range users {
		if user.Cellphone != "" {
			phones = append(phones, user.Cellphone)
		}
	}
	return phones, nil
}

// DeleteUsers removes every document matching username and returns how
// many were removed. No match is not an error.
func (u *UsersStore) DeleteUsers(ctx context.Context, username string) (int64, error) {
	res, err := u.coll.DeleteMany(ctx, bson.M{"username": normalize.Username(username)})
	if err != nil {
		return 0, apperrors.External("delete users", err)
	}
	return res.DeletedCount, nil
}

// UpdateUser replaces the user named by fields["username"] with fields.
// This is a whole-document overwrite: any stored field missing from
// fields is dropped. Use PatchUser to merge instead.
func (u *UsersStore) UpdateUser(ctx context.Context, fields map[string]any) error {
	doc, err := userDocument(fields)
	if err != nil {
		return err
	}
	username, ok := doc["username"].(string)
	if !ok || username == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "fields.username is required")
	}

	res, err := u.coll.ReplaceOne(ctx, bson.M{"username": username}, doc)
	if err != nil {
		return apperrors.External("replace user", err)
	}
	if res.MatchedCount == 0 {
		return errUserNotFound(username)
	}
	return nil
}

// PatchUser sets the given fields on the user, leaving others untouched.
// Renaming onto an existing username fails with ALREADY_EXISTS.
func (u *UsersStore) PatchUser(ctx context.Context, username string, fields map[string]any) error {
	username = normalize.Username(username)
	if len(fields) == 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "no fields to update")
	}
	doc, err := userDocument(fields)
	if err != nil {
		return err
	}

	res, err := u.coll.UpdateOne(ctx, bson.M{"username": username}, bson.M{"$set": doc})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			name, _ := doc["username"].(string)
			return errUserExists(name)
		}
		return apperrors.External("update user", err)
	}
	if res.MatchedCount == 0 {
		return errUserNotFound(username)
	}
	return nil
}

// SetStatus records whether the user is In or Out of the house.
func (u *UsersStore) SetStatus(ctx context.Context, username string, status Status) error {
	return u.PatchUser(ctx, username, map[string]any{"status": string(status)})
}

func (u *UsersStore) findOne(ctx context.Context, filter bson.M, notFound func() error) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, notFound()
		}
		return nil, apperrors.External("find user", err)
	}
	return &user, nil
}

// userDocument copies caller-supplied fields into a BSON document,
// normalizing known keys and rejecting ones the store owns.
func userDocument(fields map[string]any) (bson.M, error) {
	doc := bson.M{}
	for k, v := range fields {
		switch k {
		case "_id":
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "_id cannot be set")
		case "username":
			s, ok := v.(string)
			if !ok || normalize.Username(s) == "" {
				return nil, apperrors.New(apperrors.CodeInvalidArgument, "username must be a non-empty string")
			}
			v = normalize.Username(s)
		case "image":
			if s, ok := v.(string); ok {
				v = normalize.ImagePath(s)
			}
		case "status":
			var st Status
			switch s := v.(type) {
			case string:
				st = Status(s)
			case Status:
				st = s
			}
			if !st.Valid() {
				return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "invalid status", map[string]string{"status": string(st)})
			}
			v = string(st)
		}
		doc[k] = v
	}
	return doc, nil
}
