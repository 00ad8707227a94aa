//go:build integration

package datastore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startContainer(t *testing.T, image, port string, cmd ...string) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{port},
		Cmd:          cmd,
		WaitingFor:   wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func TestRedisMongoIntegration(t *testing.T) {
	ctx := context.Background()
	redisAddr := startContainer(t, "redis:7-alpine", "6379/tcp")
	mongoAddr := startContainer(t, "mongo:7", "27017/tcp")

	c, err := cache.NewRedisCache(cache.RedisConfig{Addr: redisAddr})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	store, err := repository.NewMongoDBDocumentStore("mongodb://"+mongoAddr, "bookstore_test")
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureIndex(ctx, books, model.BookParentField); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	bookDS := New[model.Book](c, store)
	storeDS := New[model.Bookstore](c, store)

	shop := model.NewRecord("s1", model.Bookstore{Name: "Corner", Address: "1 Main St", Number: "555"})
	if _, err := storeDS.CreateOne(ctx, bookstores, ns, shop, 0); err != nil {
		t.Fatalf("create bookstore: %v", err)
	}
	if _, err := bookDS.CreateOne(ctx, books, ns, dune(), 0); err != nil {
		t.Fatalf("create book: %v", err)
	}

	got, err := bookDS.Read(ctx, books, ns, "b1")
	if err != nil || !got.IsHit() || got.Record != dune() {
		t.Fatalf("expected hit: %v %+v err=%v", got.State, got.Record, err)
	}

	if _, err := bookDS.CreateOne(ctx, books, ns, dune(), 0); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	name := "Dune Messiah"
	updated, err := bookDS.UpdateMany(ctx, books, ns, map[string]model.Patch[model.Book]{"b1": model.BookPatch{Name: &name}}, time.Second)
	if err != nil || updated[0].Data.Name != name || updated[0].Data.BookstoreID != "s1" {
		t.Fatalf("update many: %+v err=%v", updated, err)
	}

	parent, err := ReadParent(ctx, storeDS, bookstores, ns, updated[0])
	if err != nil || parent.Record != shop {
		t.Fatalf("read parent: %+v err=%v", parent.Record, err)
	}
	children, err := bookDS.ReadChildren(ctx, books, model.BookParentField, "s1")
	if err != nil || len(children) != 1 {
		t.Fatalf("read children: %+v err=%v", children, err)
	}

	time.Sleep(1500 * time.Millisecond)
	got, err = bookDS.Read(ctx, books, ns, "b1")
	if err != nil || got.State != Miss || got.Record.Data.Name != name {
		t.Fatalf("expected miss with updated record: %v %+v err=%v", got.State, got.Record, err)
	}

	if err := bookDS.ClearScoped(ctx, books, ns); err != nil {
		t.Fatalf("clear scoped: %v", err)
	}
	if got, err := storeDS.Read(ctx, bookstores, ns, "s1"); err != nil || !got.IsHit() {
		t.Fatalf("bookstore should stay cached: %v err=%v", got.State, err)
	}
	if err := bookDS.Delete(ctx, books, ns, "b1"); err != nil {
		t.Fatalf("delete of cleared id should succeed: %v", err)
	}
}

func TestNATSDynamoIntegration(t *testing.T) {
	ctx := context.Background()
	natsAddr := startContainer(t, "nats:2.10-alpine", "4222/tcp", "-js")
	dynamoAddr := startContainer(t, "amazon/dynamodb-local:latest", "8000/tcp")

	c, err := cache.NewNATSCache(cache.NATSConfig{URL: "nats://" + natsAddr, Bucket: "itest"})
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	store, err := repository.NewDynamoDBDocumentStore(ctx, repository.DynamoDBConfig{
		Table:     "itest_documents",
		Endpoint:  "http://" + dynamoAddr,
		AccessKey: "local",
		SecretKey: "local",
	})
	if err != nil {
		t.Fatalf("connect dynamodb: %v", err)
	}

	bookDS := New[model.Book](c, store)
	if _, err := bookDS.CreateOne(ctx, books, ns, dune(), time.Second); err != nil {
		t.Fatalf("create book: %v", err)
	}
	got, err := bookDS.Read(ctx, books, ns, "b1")
	if err != nil || !got.IsHit() || got.Record != dune() {
		t.Fatalf("expected hit: %v %+v err=%v", got.State, got.Record, err)
	}

	children, err := bookDS.ReadChildren(ctx, books, model.BookParentField, "s1")
	if err != nil || len(children) != 1 {
		t.Fatalf("read children: %+v err=%v", children, err)
	}

	time.Sleep(1500 * time.Millisecond)
	got, err = bookDS.Read(ctx, books, ns, "b1")
	if err != nil || got.State != Miss {
		t.Fatalf("expected miss after ttl: %v err=%v", got.State, err)
	}

	if err := bookDS.Clear(ctx, books); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, err := bookDS.Count(ctx, books); err != nil || n != 0 {
		t.Fatalf("expected empty collection: %d err=%v", n, err)
	}
}
