package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"relaydesk/internal/config"
	"relaydesk/internal/db"
	"relaydesk/internal/domain"
	"relaydesk/internal/engine"
	"relaydesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	// Run fan-out inline so requests finish all their writes before returning.
	e.Go = func(f func()) { f() }
	ctx := context.Background()
	seed := []domain.User{
		{Name: "Ada Admin", Email: "ada@corp.test", Role: domain.RoleAdmin},
		{Name: "Mo Manager", Email: "mo@corp.test", Role: domain.RoleManager, Department: "ops"},
		{Name: "Tia Lead", Email: "tia@corp.test", Role: domain.RoleTeamLead, Department: "ops"},
		{Name: "Eli Employee", Email: "eli@corp.test", Role: domain.RoleEmployee, Department: "ops"},
	}
	for _, u := range seed {
		if _, err := e.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.Email, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", TokenTTLHours: 1},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, email string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{"email": email}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", email, res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return out.Token
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var out struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	return out.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %s", code)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{"email": "ghost@corp.test"}, "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestDelegationFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	manager := login(t, srv, "mo@corp.test")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":      "Install rack",
		"department": "ops",
	}, manager)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/shared", map[string]any{"task_id": task.ID}, manager)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("share status %d: %s", res.StatusCode, string(data))
	}
	var shared domain.SharedTask
	if err := json.Unmarshal(data, &shared); err != nil {
		t.Fatalf("unmarshal shared: %v", err)
	}
	if shared.DelegationStatus != domain.DelegationPending {
		t.Fatalf("delegation_status = %s", shared.DelegationStatus)
	}

	// Delegate the teamlead stage.
	users := listUsers(t, srv, manager)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/shared/"+shared.ID+"/delegate", map[string]any{
		"stage":   "teamlead",
		"user_id": users["tia@corp.test"],
	}, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delegate status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/shared/"+shared.ID+"/status", map[string]any{
		"axis":  domain.AxisDelegation,
		"value": domain.DelegationSigned,
	}, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status update %d: %s", res.StatusCode, string(data))
	}

	// The delegated teamlead can now read and act.
	teamlead := login(t, srv, "tia@corp.test")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/shared/"+shared.ID, nil, teamlead)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("teamlead read status %d: %s", res.StatusCode, string(data))
	}

	// Participants include manager, teamlead, and the oversight admin.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/shared/"+shared.ID+"/participants", nil, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("participants status %d: %s", res.StatusCode, string(data))
	}
	var parts []domain.ParticipantRecord
	if err := json.Unmarshal(data, &parts); err != nil {
		t.Fatalf("unmarshal participants: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d participants: %s", len(parts), string(data))
	}
}

func TestInvalidStatusMapsTo422(t *testing.T) {
	srv := newTestServer(t)
	manager := login(t, srv, "mo@corp.test")
	shared := shareFixture(t, srv, manager)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/shared/"+shared.ID+"/status", map[string]any{
		"axis":  domain.AxisDelegation,
		"value": domain.DelegationCompleted,
	}, manager)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_status" {
		t.Fatalf("code = %s", code)
	}
}

func TestForbiddenAndNotFound(t *testing.T) {
	srv := newTestServer(t)
	manager := login(t, srv, "mo@corp.test")
	employee := login(t, srv, "eli@corp.test")
	shared := shareFixture(t, srv, manager)

	// Existing record, no chain claim: 403, never 404.
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/shared/"+shared.ID, nil, employee)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("code = %s", code)
	}

	// The access probe answers without erroring for both callers.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/shared/"+shared.ID+"/access", nil, employee)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("access probe status %d: %s", res.StatusCode, string(data))
	}
	var probe struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.Fatalf("unmarshal probe: %v", err)
	}
	if probe.Allowed {
		t.Fatal("employee outside the chain reported as allowed")
	}

	// Nonexistent record: 404 for everyone.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/shared/no-such-id", nil, manager)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestFeedbackOwnershipOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	manager := login(t, srv, "mo@corp.test")
	shared := shareFixture(t, srv, manager)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/shared/"+shared.ID+"/feedback", map[string]any{
		"text": "needs review",
	}, manager)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add feedback status %d: %s", res.StatusCode, string(data))
	}
	var entry domain.FeedbackEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}

	// The admin holds access but not authorship.
	admin := login(t, srv, "ada@corp.test")
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/shared/"+shared.ID+"/feedback/"+entry.ID, map[string]any{
		"text": "rewritten",
	}, admin)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_entry_author" {
		t.Fatalf("code = %s", code)
	}

	// Replying is open to any access holder.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/shared/"+shared.ID+"/feedback/"+entry.ID+"/replies", map[string]any{
		"text": "agreed",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("reply status %d: %s", res.StatusCode, string(data))
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	srv := newTestServer(t)
	manager := login(t, srv, "mo@corp.test")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"name":  "New Person",
		"email": "new@corp.test",
		"role":  domain.RoleEmployee,
	}, manager)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	admin := login(t, srv, "ada@corp.test")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"name":  "New Person",
		"email": "new@corp.test",
		"role":  domain.RoleEmployee,
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestNotificationsInbox(t *testing.T) {
	srv := newTestServer(t)
	manager := login(t, srv, "mo@corp.test")
	shared := shareFixture(t, srv, manager)

	// A status change fans out to the oversight admin.
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/shared/"+shared.ID+"/status", map[string]any{
		"axis":  domain.AxisVendor,
		"value": domain.VendorApproved,
	}, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status update %d: %s", res.StatusCode, string(data))
	}

	admin := login(t, srv, "ada@corp.test")
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var items []domain.Notification
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("admin inbox empty after fan-out")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/notifications/"+items[0].ID+"/read", nil, admin)
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status %d: %s", res.StatusCode, string(data))
	}
}

func TestEventLogPagingCoversEveryEvent(t *testing.T) {
	srv := newTestServer(t)
	manager := login(t, srv, "mo@corp.test")
	// Three mutations: submit, share, and one status change.
	shared := shareFixture(t, srv, manager)
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/shared/"+shared.ID+"/status", map[string]any{
		"axis":  domain.AxisDelegation,
		"value": domain.DelegationSigned,
	}, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status update %d: %s", res.StatusCode, string(data))
	}

	type page struct {
		Items      []domain.Event `json:"items"`
		NextCursor string         `json:"next_cursor,omitempty"`
	}
	fetch := func(query string) page {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/events"+query, nil, manager)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list events %s: status %d: %s", query, res.StatusCode, string(data))
		}
		var p page
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("unmarshal events page: %v", err)
		}
		return p
	}

	all := fetch("").Items
	if len(all) < 3 {
		t.Fatalf("want at least 3 events, got %d", len(all))
	}

	var paged []domain.Event
	query := "?limit=1"
	for {
		p := fetch(query)
		paged = append(paged, p.Items...)
		if p.NextCursor == "" {
			break
		}
		query = "?limit=1&cursor=" + p.NextCursor
	}
	if len(paged) != len(all) {
		t.Fatalf("paging returned %d events, unpaged returned %d", len(paged), len(all))
	}
	for i := range all {
		if paged[i].ID != all[i].ID {
			t.Fatalf("page item %d: got event %d, want %d", i, paged[i].ID, all[i].ID)
		}
	}
}

func listUsers(t *testing.T, srv *testServer, token string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/users", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list users status %d: %s", res.StatusCode, string(data))
	}
	var users []domain.User
	if err := json.Unmarshal(data, &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	byEmail := map[string]string{}
	for _, u := range users {
		byEmail[u.Email] = u.ID
	}
	return byEmail
}

func shareFixture(t *testing.T, srv *testServer, managerToken string) domain.SharedTask {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":      "Fixture task",
		"department": "ops",
	}, managerToken)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit fixture task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/shared", map[string]any{"task_id": task.ID}, managerToken)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("share fixture status %d: %s", res.StatusCode, string(data))
	}
	var shared domain.SharedTask
	if err := json.Unmarshal(data, &shared); err != nil {
		t.Fatalf("unmarshal shared: %v", err)
	}
	return shared
}
