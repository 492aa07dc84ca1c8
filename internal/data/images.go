package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"iter"
	"os"
	"time"

	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"
	"github.com/PaulBabatuyi/houseye/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ImagesStore keeps image assets in a GridFS bucket, keyed by path.
type ImagesStore struct {
	bucket *mongo.GridFSBucket
}

// NewImagesStore returns an ImagesStore using the given bucket.
func NewImagesStore(bucket *mongo.GridFSBucket) *ImagesStore {
	return &ImagesStore{bucket: bucket}
}

func pathMeta(path string) map[string]string {
	return map[string]string{"path": path}
}

// AddImage uploads the local file at localPath under its normalized path.
// An existing image with the same path is replaced.
func (s *ImagesStore) AddImage(ctx context.Context, localPath string) (*Blob, error) {
	key := normalize.ImagePath(localPath)
	if key == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "image path is required")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, &apperrors.Error{
			Code:     apperrors.CodeInvalidArgument,
			Message:  "open image",
			Metadata: pathMeta(key),
			Cause:    err,
		}
	}
	defer f.Close()

	// Hash first so the digest can go into the upload metadata
	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "read image", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "rewind image", err)
	}

	meta := BlobMetadata{SHA256: hex.EncodeToString(h.Sum(nil)), Source: localPath}
	id, err := s.bucket.UploadFromStream(ctx, key, f, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return nil, apperrors.External("upload image", err)
	}

	blob, err := s.findBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		// a newer upload of the same path already replaced this one
		return &Blob{ID: id, Path: key, Size: size, UploadedAt: time.Now(), Metadata: meta}, nil
	}
	blob.Size = size

	// GridFS keeps revisions per filename. Drop only those older than this
	// upload, ordered by (uploadDate, _id), so concurrent uploads of one path
	// leave the newest in place instead of removing each other.
	older := bson.M{
		"filename": key,
		"$or": bson.A{
			bson.M{"uploadDate": bson.M{"$lt": blob.UploadedAt}},
			bson.M{"uploadDate": blob.UploadedAt, "_id": bson.M{"$lt": id}},
		},
	}
	if err := s.deleteWhere(ctx, older); err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *ImagesStore) findBlob(ctx context.Context, id bson.ObjectID) (*Blob, error) {
	cursor, err := s.bucket.Find(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, apperrors.External("find uploaded image", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, apperrors.External("find uploaded image", err)
		}
		return nil, nil
	}
	var b Blob
	if err := cursor.Decode(&b); err != nil {
		return nil, apperrors.External("decode uploaded image", err)
	}
	return &b, nil
}

// DeleteImage removes the image at path. Deleting a missing image succeeds.
func (s *ImagesStore) DeleteImage(ctx context.Context, path string) error {
	key := normalize.ImagePath(path)
	if key == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "image path is required")
	}
	return s.deleteWhere(ctx, bson.M{"filename": key})
}

func (s *ImagesStore) deleteWhere(ctx context.Context, filter bson.M) error {
	cursor, err := s.bucket.Find(ctx, filter)
	if err != nil {
		return apperrors.External("find images", err)
	}
	var blobs []*Blob
	if err := cursor.All(ctx, &blobs); err != nil {
		return apperrors.External("decode images", err)
	}

	for _, b := range blobs {
		// Another caller may have removed it between Find and Delete
		if err := s.bucket.Delete(ctx, b.ID); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			return apperrors.External("delete image", err)
		}
	}
	return nil
}

// ListImages enumerates every stored image ordered by path. The sequence is
// lazy (documents are decoded as the caller ranges) and restartable: each
// range runs a fresh query. A failure is yielded once as the last element.
func (s *ImagesStore) ListImages(ctx context.Context) iter.Seq2[*Blob, error] {
	return func(yield func(*Blob, error) bool) {
		opts := options.GridFSFind().SetSort(bson.D{{Key: "filename", Value: 1}})
		cursor, err := s.bucket.Find(ctx, bson.M{}, opts)
		if err != nil {
			yield(nil, apperrors.External("list images", err))
			return
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			var b Blob
			if err := cursor.Decode(&b); err != nil {
				yield(nil, apperrors.External("decode image", err))
				return
			}
			if !yield(&b, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, apperrors.External("list images", err))
		}
	}
}

// OpenImage writes the image stored at path to w and returns the number of
// bytes written.
func (s *ImagesStore) OpenImage(ctx context.Context, path string, w io.Writer) (int64, error) {
	key := normalize.ImagePath(path)
	n, err := s.bucket.DownloadToStreamByName(ctx, key, w)
	if err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return 0, apperrors.WithMetadata(apperrors.CodeNotFound, "image not found", pathMeta(key))
		}
		return n, apperrors.External("download image", err)
	}
	return n, nil
}
