package store_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	faker "github.com/go-faker/faker/v4"

	"github.com/lensfeed/lensfeed/internal/store"
	"github.com/lensfeed/lensfeed/pkg/pgtest"
)

func TestMain(m *testing.M) {
	pgtest.BootOnce(&testing.T{}, pgtest.WithDBName("lensfeed"))
	code := m.Run()
	_ = pgtest.ShutdownNow()
	os.Exit(code)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	sbx := pgtest.NewSandbox(t, store.MigrationsFS())
	return store.New(sbx.DB)
}

func mustCreateUser(t *testing.T, s *store.Store, username string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.CreateUser(ctx, username, faker.Password()); err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
}

func mustCreatePhoto(t *testing.T, s *store.Store, username string) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	name := faker.UUIDDigit() + ".jpg"
	id, err := s.CreatePhoto(ctx, username, name, "/photos/"+name)
	if err != nil {
		t.Fatalf("CreatePhoto for %q: %v", username, err)
	}
	return id
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash-a"); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice", "hash-b"); err != store.ErrUsernameTaken {
		t.Fatalf("duplicate CreateUser = %v, want ErrUsernameTaken", err)
	}

	u, err := s.UserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("UserByName: %v", err)
	}
	if u.PasswordHash != "hash-a" {
		t.Errorf("PasswordHash = %q, want the first registration's hash", u.PasswordHash)
	}

	if _, err := s.UserByName(ctx, "nobody"); err != store.ErrNotFound {
		t.Fatalf("UserByName(nobody) = %v, want ErrNotFound", err)
	}
}

func TestLastPhotosOwnerFilterAndOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "bob")

	var aliceIDs []int64
	for i := 0; i < 3; i++ {
		aliceIDs = append(aliceIDs, mustCreatePhoto(t, s, "alice"))
	}
	for i := 0; i < 5; i++ {
		mustCreatePhoto(t, s, "bob")
	}

	got, err := s.LastPhotos(ctx, store.FeedQuery{PageOwner: "alice"})
	if err != nil {
		t.Fatalf("LastPhotos(owner=alice): %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d photos for alice, want 3", len(got))
	}
	for i, p := range got {
		if p.Username != "alice" {
			t.Errorf("photo %d uploader = %q, want alice", i, p.Username)
		}
		want := aliceIDs[len(aliceIDs)-1-i] // newest first
		if p.ID != want {
			t.Errorf("photo %d id = %d, want %d", i, p.ID, want)
		}
	}

	all, err := s.LastPhotos(ctx, store.FeedQuery{})
	if err != nil {
		t.Fatalf("LastPhotos(global): %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("global feed has %d photos, want 8", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID < all[i].ID {
			t.Fatalf("global feed not newest-first at index %d", i)
		}
	}
}

func TestLastPhotosTruncatesAtPageSize(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "carol")
	for i := 0; i < store.FeedPageSize+3; i++ {
		mustCreatePhoto(t, s, "carol")
	}

	got, err := s.LastPhotos(ctx, store.FeedQuery{})
	if err != nil {
		t.Fatalf("LastPhotos: %v", err)
	}
	if len(got) != store.FeedPageSize {
		t.Fatalf("got %d photos, want %d", len(got), store.FeedPageSize)
	}
}

func TestLikedFlagPerViewer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "bob")
	photoID := mustCreatePhoto(t, s, "alice")

	liked, err := s.ToggleLike(ctx, "bob", photoID)
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if !liked {
		t.Fatal("first toggle should like")
	}

	asBob, err := s.LastPhotos(ctx, store.FeedQuery{Viewer: "bob"})
	if err != nil {
		t.Fatalf("LastPhotos(viewer=bob): %v", err)
	}
	if !asBob[0].Liked || asBob[0].LikesCount != 1 {
		t.Errorf("bob's view = {liked:%v count:%d}, want {liked:true count:1}",
			asBob[0].Liked, asBob[0].LikesCount)
	}

	asAlice, err := s.LastPhotos(ctx, store.FeedQuery{Viewer: "alice"})
	if err != nil {
		t.Fatalf("LastPhotos(viewer=alice): %v", err)
	}
	if asAlice[0].Liked || asAlice[0].LikesCount != 1 {
		t.Errorf("alice's view = {liked:%v count:%d}, want {liked:false count:1}",
			asAlice[0].Liked, asAlice[0].LikesCount)
	}

	liked, err = s.ToggleLike(ctx, "bob", photoID)
	if err != nil {
		t.Fatalf("second ToggleLike: %v", err)
	}
	if liked {
		t.Fatal("second toggle should unlike")
	}
}

func TestToggleLikeConcurrentDuplicates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "bob")
	photoID := mustCreatePhoto(t, s, "alice")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ToggleLike(ctx, "bob", photoID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ToggleLike: %v", err)
		}
	}

	// Whatever interleaving happened, the pair must end in exactly one of
	// liked / not-liked, never a double apply.
	photos, err := s.LastPhotos(ctx, store.FeedQuery{Viewer: "bob"})
	if err != nil {
		t.Fatalf("LastPhotos: %v", err)
	}
	if photos[0].LikesCount != 0 && photos[0].LikesCount != 1 {
		t.Fatalf("likes_count = %d after concurrent toggles, want 0 or 1", photos[0].LikesCount)
	}
	if photos[0].Liked != (photos[0].LikesCount == 1) {
		t.Fatalf("liked flag %v disagrees with count %d", photos[0].Liked, photos[0].LikesCount)
	}
}

func TestToggleLikeMissingPhoto(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice")
	if _, err := s.ToggleLike(ctx, "alice", 424242); err != store.ErrNotFound {
		t.Fatalf("ToggleLike(missing photo) = %v, want ErrNotFound", err)
	}
}

func TestToggleFollow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "bob")

	if _, err := s.ToggleFollow(ctx, "alice", "alice"); err != store.ErrSelfFollow {
		t.Fatalf("self follow = %v, want ErrSelfFollow", err)
	}

	following, err := s.ToggleFollow(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ToggleFollow: %v", err)
	}
	if !following {
		t.Fatal("first toggle should follow")
	}

	st, err := s.ProfileStats(ctx, "bob")
	if err != nil {
		t.Fatalf("ProfileStats: %v", err)
	}
	if st.Followers != 1 || st.Following != 0 {
		t.Errorf("bob stats = %+v, want 1 follower, 0 following", st)
	}

	following, err = s.ToggleFollow(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("second ToggleFollow: %v", err)
	}
	if following {
		t.Fatal("second toggle should unfollow")
	}
}

func TestAddCommentResolvesMentions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "bob")
	photoID := mustCreatePhoto(t, s, "alice")

	text := fmt.Sprintf("nice shot @%s, also hi @%s and @ghost", "alice", "bob")
	commentID, err := s.AddComment(ctx, "bob", photoID, text)
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if commentID == 0 {
		t.Fatal("comment id is zero")
	}

	if _, err := s.AddComment(ctx, "ghost", photoID, "hi"); err != store.ErrNotFound {
		t.Fatalf("AddComment by unknown user = %v, want ErrNotFound", err)
	}
}
