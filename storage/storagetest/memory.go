// Package storagetest stellt einen ObjectStore im Speicher für Tests bereit.
package storagetest

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MemoryStore implementiert storage.ObjectStore. Jedes PutObject ist eine Stunde "neuer" als das vorige.
type MemoryStore struct {
	mu         sync.Mutex
	objects    map[string]object
	now        time.Time
	FailDelete bool
}

type object struct {
	data     []byte
	modified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]object{}, now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *MemoryStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(time.Hour)
	m.objects[aws.ToString(in.Key)] = object{data: data, modified: m.now}
	return &s3.PutObjectOutput{}, nil
}

func (m *MemoryStore) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key, obj := range m.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key), LastModified: aws.Time(obj.modified)})
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return nil, errors.New("access denied")
	}
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// Object gibt den Inhalt eines Objekts zurück.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

// Keys gibt alle Keys sortiert zurück.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
