package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/core/storetest"
	"github.com/abhimm5/chatapp/internal/infra/persistence/mongostore"
)

const defaultMongoURI = "mongodb://localhost:27017"

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("CHAT_TEST_MONGO_URI")
	if uri == "" {
		uri = defaultMongoURI
	}
	n := 0
	storetest.Run(t, func(t *testing.T) core.Store {
		n++
		ctx := context.Background()
		s, err := mongostore.Open(ctx, mongostore.Config{
			URI:      uri,
			Database: fmt.Sprintf("chat_test_%d_%d", time.Now().UnixNano(), n),
			Timeout:  2 * time.Second,
		})
		if err != nil {
			t.Skipf("MongoDB not available at %s: %v", uri, err)
		}
		t.Cleanup(func() {
			_ = s.Drop(ctx)
			_ = s.Close(ctx)
		})
		return s
	})
}
