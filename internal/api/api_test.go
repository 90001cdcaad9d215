package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/aislemap/internal/mapservice"
	"github.com/starford/aislemap/internal/mapview"
	"github.com/starford/aislemap/internal/models"
	"github.com/starford/aislemap/internal/storage"
	"github.com/starford/aislemap/internal/testutil"
)

type env struct {
	router  http.Handler
	store   *storage.FS
	session *mapview.Session
	remover *mapview.Remover
}

// testEnv sets up a seeded store, journal, session and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) env {
	t.Helper()
	return testEnvWith(t, authToken, nil, nil)
}

func testEnvWith(t *testing.T, authToken string, d mapview.Deleter, sseHandler http.Handler) env {
	t.Helper()
	_, store := testutil.TestStore(t)
	testutil.SeedStore(t, store)

	session := mapview.NewSession([]string{"Dairy", "Bakery"})
	t.Cleanup(session.Close)
	testutil.Sync(t, store, session)

	if d == nil {
		d = mapservice.StoreDeleter{Store: store}
	}
	j := testutil.TestJournal(t)
	remover := mapview.NewRemover(session.Selection(), d,
		mapview.WithRecorder(j),
		mapview.WithRemovalTimeout(2*time.Second))
	t.Cleanup(remover.Wait)

	svc := mapservice.NewService(session, remover, store, j)
	return env{
		router:  NewRouter(svc, authToken != "", authToken, sseHandler),
		store:   store,
		session: session,
		remover: remover,
	}
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestVisibleMarkers(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/markers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp MarkersResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Markers) != 2 || resp.Markers[0].ID != "m-dairy-1" || resp.Markers[1].ID != "m-bakery" {
		t.Errorf("markers = %+v", resp.Markers)
	}
	if resp.Markers[1].Location.X != 40 || resp.Markers[1].Location.Y != 0 {
		t.Errorf("coerced location = %+v", resp.Markers[1].Location)
	}
}

func TestAllMarkers(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/markers/all", nil)
	var resp MarkersResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Markers) != 3 {
		t.Errorf("markers = %d, want 3", len(resp.Markers))
	}
}

func TestMarkerImage(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/markers/m-dairy-1/image", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp MarkerImageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ImageURL != "http://img/milk.png" {
		t.Errorf("image = %q", resp.ImageURL)
	}

	w = do(t, e.router, http.MethodGet, "/markers/m-bakery/image", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("no image = %d, want 404", w.Code)
	}
}

func TestSelectionGrouped(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/selection", nil)
	var resp SelectionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Items) != 2 {
		t.Fatalf("items = %+v", resp.Items)
	}
	if resp.Items[0].Name != "Milk" || resp.Items[0].Quantity != 2 {
		t.Errorf("first = %+v", resp.Items[0])
	}
}

func TestAddItem(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodPost, "/selection", map[string]string{"name": "Eggs", "category": "Dairy"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec models.SelectionRecord
	_ = json.Unmarshal(w.Body.Bytes(), &rec)
	if _, err := e.store.Read(models.CollectionSelectedItems, rec.ID); err != nil {
		t.Errorf("document missing: %v", err)
	}
}

func TestAddItem_Invalid(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodPost, "/selection", map[string]string{"name": "", "category": "Dairy"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/selection", bytes.NewBufferString("{"))
	rw := httptest.NewRecorder()
	e.router.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rw.Code)
	}
}

func TestRemoveItem_Committed(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodDelete, "/selection/item-3", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	for _, g := range e.session.View().Grouped {
		if g.Name == "Bread" {
			t.Error("Bread still in view")
		}
	}

	e.remover.Wait()
	w = do(t, e.router, http.MethodGet, "/removals", nil)
	var resp RemovalsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Removals) != 1 || resp.Removals[0].State != "committed" {
		t.Errorf("removals = %+v", resp.Removals)
	}
}

func TestRemoveItem_RolledBack(t *testing.T) {
	failing := mapview.DeleterFunc(func(context.Context, string) error {
		return errors.New("store offline")
	})
	e := testEnvWith(t, "", failing, nil)

	w := do(t, e.router, http.MethodDelete, "/selection/item-3", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	found := false
	for _, g := range e.session.View().Grouped {
		if g.Name == "Bread" {
			found = true
		}
	}
	if !found {
		t.Error("Bread should be restored after rollback")
	}
}

func TestRemoveItem_NotFound(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodDelete, "/selection/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRemoveItem_NoWait(t *testing.T) {
	release := make(chan struct{})
	gated := mapview.DeleterFunc(func(ctx context.Context, _ string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	e := testEnvWith(t, "", gated, nil)

	w := do(t, e.router, http.MethodDelete, "/selection/item-1?wait=false", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var resp RemovalResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Token == "" || resp.State != "pending" || resp.RecordID != "item-1" {
		t.Errorf("resp = %+v", resp)
	}

	// A second request joins the same removal.
	w = do(t, e.router, http.MethodDelete, "/selection/item-1?wait=false", nil)
	var again RemovalResponse
	_ = json.Unmarshal(w.Body.Bytes(), &again)
	if again.Token != resp.Token {
		t.Errorf("token = %q, want %q", again.Token, resp.Token)
	}
	close(release)
}

func TestShowAllEndpoints(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodPost, "/view/show-all/toggle", nil)
	var v models.View
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if !v.ShowAll || len(v.Visible) != 3 {
		t.Errorf("toggle view = %+v", v)
	}

	w = do(t, e.router, http.MethodPut, "/view/show-all", map[string]bool{"show_all": false})
	v = models.View{}
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.ShowAll || len(v.Visible) != 2 {
		t.Errorf("put view = %+v", v)
	}

	w = do(t, e.router, http.MethodPut, "/view/show-all", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing flag = %d, want 400", w.Code)
	}

	w = do(t, e.router, http.MethodGet, "/view", nil)
	if w.Code != http.StatusOK {
		t.Errorf("view = %d", w.Code)
	}
}

func TestRemovals_Empty(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/removals?limit=5", nil)
	var resp RemovalsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Removals == nil || len(resp.Removals) != 0 {
		t.Errorf("status = %d, removals = %+v", w.Code, resp.Removals)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/view", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := do(t, e.router, http.MethodGet, "/markers", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/markers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	})
	e := testEnvWith(t, "secret123", nil, sseHandler)

	w := do(t, e.router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed events = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	rw := httptest.NewRecorder()
	e.router.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("authed events = %d %q", rw.Code, rw.Header().Get("Content-Type"))
	}
}
