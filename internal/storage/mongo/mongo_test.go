package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mng48301/searchai/internal/storage/storagetest"
)

func TestMongoBackend(t *testing.T) {
	uri := os.Getenv("SEARCHAI_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("Skipping Mongo backend test: SEARCHAI_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	collection := fmt.Sprintf("search_documents_test_%d", time.Now().UnixNano())
	b, err := New(ctx, uri, "searchai_test", collection)
	if err != nil {
		t.Fatalf("Failed to create Mongo backend: %v", err)
	}
	defer b.Close()
	defer func() { _ = b.(*mongoBackend).coll.Drop(ctx) }()

	storagetest.Run(t, b)
	storagetest.RunDuplicate(t, b)
}
