package handler

import (
	"context"
	"errors"
	"expvar"
	"net"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/glauth/iamldap/internal/monitoring"
	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/iamldap/pkg/secret"
	"github.com/glauth/iamldap/pkg/stats"
	"github.com/glauth/ldap"
)

const testBaseDN = "dc=example,dc=com"

func intPtr(i int) *int { return &i }

func member(name, path string, created time.Time) iam.Member {
	return iam.Member{
		UserName:   name,
		Path:       path,
		Arn:        "arn:aws:iam::123456789012:user" + path + name,
		CreateDate: created,
	}
}

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a
}

type fixture struct {
	client  *iam.MockClient
	monitor *monitoring.MockMonitorInterface
	handler Handler
}

func newFixture(t *testing.T, dir config.Directory, opts ...Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		client:  iam.NewMockClient(ctrl),
		monitor: monitoring.NewMockMonitorInterface(ctrl),
	}
	f.monitor.EXPECT().SetResponseTimeMetric(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.monitor.EXPECT().SetBackendResponseTimeMetric(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s, err := secret.New("s3cr3t", "")
	if err != nil {
		t.Fatal(err)
	}

	f.handler = NewIAMHandler(append([]Option{
		Directory(dir),
		Secret(s),
		Client(f.client),
		Monitor(f.monitor),
	}, opts...)...)

	return f
}

func defaultDirectory() config.Directory {
	return config.Directory{
		BaseDN:     testBaseDN,
		GroupName:  "ops",
		DefaultGID: config.DefaultGID,
	}
}

func searchRequest(filter string) ldap.SearchRequest {
	return ldap.SearchRequest{BaseDN: testBaseDN, Scope: ldap.ScopeWholeSubtree, Filter: filter}
}

// search runs a search on a fresh connection, binding it as root first when
// boundDN names the root account.
func search(t *testing.T, h Handler, boundDN, filter string) (ldap.ServerSearchResult, error) {
	t.Helper()
	conn := pipeConn(t)
	if normalizeDN(boundDN) == rootDN {
		if code, err := h.Bind(boundDN, "s3cr3t", conn); err != nil || code != ldap.LDAPResultSuccess {
			t.Fatalf("root bind failed: %v %v", code, err)
		}
	}
	return h.Search(boundDN, searchRequest(filter), conn)
}

func TestBind(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	tests := []struct {
		name string
		dn   string
		pw   string
		want ldap.LDAPResultCode
	}{
		{"root with secret", "cn=root", "s3cr3t", ldap.LDAPResultSuccess},
		{"root is case insensitive", " CN=Root ", "s3cr3t", ldap.LDAPResultSuccess},
		{"root with wrong secret", "cn=root", "nope", ldap.LDAPResultInvalidCredentials},
		{"root with empty secret", "cn=root", "", ldap.LDAPResultInvalidCredentials},
		{"root with secret prefix", "cn=root", "s3cr3", ldap.LDAPResultInvalidCredentials},
		{"local without password", "cn=local", "", ldap.LDAPResultSuccess},
		{"local with any password", "cn=local", "whatever", ldap.LDAPResultSuccess},
		{"unknown dn", "cn=alice,ou=users," + testBaseDN, "s3cr3t", ldap.LDAPResultInvalidCredentials},
		{"anonymous", "", "", ldap.LDAPResultInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.handler.Bind(tt.dn, tt.pw, pipeConn(t))
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("Bind(%q) = %v, want %v", tt.dn, got, tt.want)
			}
		})
	}
}

func TestBindCounters(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	successes := stats.Frontend.Get("bind_successes")
	before := int64(0)
	if v, ok := successes.(*expvar.Int); ok {
		before = v.Value()
	}

	if _, err := f.handler.Bind("cn=local", "", pipeConn(t)); err != nil {
		t.Fatal(err)
	}

	after := stats.Frontend.Get("bind_successes").(*expvar.Int).Value()
	if after != before+1 {
		t.Errorf("bind_successes went from %d to %d", before, after)
	}
}

func TestAuthorizeLocal(t *testing.T) {
	tests := []struct {
		name     string
		uid, gid *int
		peerUID  int
		peerGID  int
		peerErr  error
		allowed  bool
	}{
		{"uid matches", intPtr(1000), intPtr(2000), 1000, 1, nil, true},
		{"gid matches", intPtr(1000), intPtr(2000), 1, 2000, nil, true},
		{"both match", intPtr(1000), intPtr(2000), 1000, 2000, nil, true},
		{"neither matches", intPtr(1000), intPtr(2000), 1, 1, nil, false},
		{"only uid required", intPtr(1000), nil, 1, 2000, nil, false},
		{"only gid required", nil, intPtr(2000), 5, 2000, nil, true},
		{"nothing required", nil, nil, 0, 0, nil, false},
		{"credentials unreadable", intPtr(1000), intPtr(2000), 1000, 2000, ErrNoPeerCredentials, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := defaultDirectory()
			dir.RequireUID = tt.uid
			dir.RequireGID = tt.gid

			peer := func(net.Conn) (int, int, error) {
				return tt.peerUID, tt.peerGID, tt.peerErr
			}

			h := NewIAMHandler(Directory(dir), Local(true), PeerCredentialsReader(peer)).(*iamHandler)

			err := h.authorize("", pipeConn(t), h.dir.Load())
			if tt.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrInsufficientAccess) {
				t.Errorf("expected ErrInsufficientAccess, got %v", err)
			}
		})
	}
}

func TestAuthorizeNetwork(t *testing.T) {
	s, err := secret.New("s3cr3t", "")
	if err != nil {
		t.Fatal(err)
	}
	h := NewIAMHandler(Directory(defaultDirectory()), Secret(s), PeerCredentialsReader(func(net.Conn) (int, int, error) {
		t.Fatal("peer credentials must not be consulted on network listeners")
		return 0, 0, nil
	})).(*iamHandler)

	tests := []struct {
		boundDN string
		allowed bool
	}{
		{"cn=root", true},
		{"CN=ROOT", true},
		{"cn=local", false},
		{"", false},
		{"cn=root,dc=example,dc=com", false},
	}

	for _, tt := range tests {
		conn := pipeConn(t)
		if _, err := h.Bind("cn=root", "s3cr3t", conn); err != nil {
			t.Fatal(err)
		}
		err := h.authorize(tt.boundDN, conn, h.dir.Load())
		if tt.allowed != (err == nil) {
			t.Errorf("authorize(%q) = %v, want allowed=%v", tt.boundDN, err, tt.allowed)
		}
	}

	if err := h.authorize("cn=root", pipeConn(t), h.dir.Load()); !errors.Is(err, ErrInsufficientAccess) {
		t.Errorf("a connection that never bound as root must be refused, got %v", err)
	}
}

func TestFailedRebindDropsRoot(t *testing.T) {
	tests := []struct {
		name string
		dn   string
		pw   string
	}{
		{"wrong secret", "cn=root", "wrong"},
		{"unknown dn", "cn=alice,ou=users," + testBaseDN, "s3cr3t"},
		{"local bind", "cn=local", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultDirectory())
			conn := pipeConn(t)

			if code, _ := f.handler.Bind("cn=root", "s3cr3t", conn); code != ldap.LDAPResultSuccess {
				t.Fatalf("root bind = %v", code)
			}
			f.handler.Bind(tt.dn, tt.pw, conn)

			// the library still reports the last successful bind
			res, err := f.handler.Search("cn=root", searchRequest("(objectClass=*)"), conn)
			if !errors.Is(err, ErrInsufficientAccess) || res.ResultCode != ldap.LDAPResultInsufficientAccessRights {
				t.Fatalf("expected insufficient access, got %v %v", res.ResultCode, err)
			}
			if len(res.Entries) != 0 {
				t.Fatalf("expected no entries, got %d", len(res.Entries))
			}
		})
	}
}

func TestRootRebindRestoresAccess(t *testing.T) {
	f := newFixture(t, defaultDirectory())
	conn := pipeConn(t)

	f.handler.Bind("cn=root", "s3cr3t", conn)
	f.handler.Bind("cn=root", "wrong", conn)
	if code, _ := f.handler.Bind("cn=root", "s3cr3t", conn); code != ldap.LDAPResultSuccess {
		t.Fatalf("root bind = %v", code)
	}

	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
		Members: []iam.Member{member("Alice", "/alice/", time.Now())},
	}, nil)

	res, err := f.handler.Search("cn=root", searchRequest("(uid=alice)"), conn)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected alice, got %+v", res.Entries)
	}
}

func TestFetchMembersAggregatesPages(t *testing.T) {
	f := newFixture(t, defaultDirectory())
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	gomock.InOrder(
		f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
			Members: []iam.Member{
				member("Alice", "/alice/", now),
				member("Bob", "/bob/", now.Add(time.Hour)),
			},
			IsTruncated: true,
			Marker:      "M",
		}, nil),
		f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "M").Return(&iam.Page{
			Members: []iam.Member{member("Carol", "/carol/", now)},
		}, nil),
	)

	set, err := f.handler.(*iamHandler).fetchMembers(context.Background(), f.handler.(*iamHandler).dir.Load())
	if err != nil {
		t.Fatal(err)
	}

	if len(set.users) != 3 || set.pages != 2 {
		t.Fatalf("expected 3 users over 2 pages, got %d over %d", len(set.users), set.pages)
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		if _, ok := set.users[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}
}

func TestFetchMembersLaterEntriesWin(t *testing.T) {
	f := newFixture(t, defaultDirectory())
	older := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(1, 0, 0)

	gomock.InOrder(
		f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
			// newest first, the page is reordered by creation date
			Members:     []iam.Member{member("Alice v2", "/alice/", newer), member("Alice v1", "/alice/", older)},
			IsTruncated: true,
			Marker:      "M",
		}, nil),
		f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "M").Return(&iam.Page{}, nil),
	)

	set, err := f.handler.(*iamHandler).fetchMembers(context.Background(), f.handler.(*iamHandler).dir.Load())
	if err != nil {
		t.Fatal(err)
	}
	if len(set.users) != 1 || set.users["alice"].Name != "Alice v2" {
		t.Fatalf("expected the most recent alice, got %+v", set.users)
	}
}

func TestFetchMembersSkipsEmptyUsernames(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
		Members: []iam.Member{member("Root", "/", time.Now()), member("Alice", "/alice/", time.Now())},
	}, nil)

	set, err := f.handler.(*iamHandler).fetchMembers(context.Background(), f.handler.(*iamHandler).dir.Load())
	if err != nil {
		t.Fatal(err)
	}
	if len(set.users) != 1 {
		t.Fatalf("expected only alice, got %+v", set.users)
	}
	if _, ok := set.users[""]; ok {
		t.Fatal("empty username was materialized")
	}
}

func TestFetchMembersWithoutGroup(t *testing.T) {
	dir := defaultDirectory()
	dir.GroupName = ""
	f := newFixture(t, dir)

	set, err := f.handler.(*iamHandler).fetchMembers(context.Background(), f.handler.(*iamHandler).dir.Load())
	if err != nil {
		t.Fatal(err)
	}
	if len(set.users) != 0 {
		t.Fatalf("expected no users, got %d", len(set.users))
	}
}

func TestFetchMembersPageLimit(t *testing.T) {
	dir := defaultDirectory()
	dir.MaxPages = 2
	f := newFixture(t, dir)

	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", gomock.Any()).Return(&iam.Page{
		Members:     []iam.Member{member("Alice", "/alice/", time.Now())},
		IsTruncated: true,
		Marker:      "again",
	}, nil).Times(2)

	_, err := f.handler.(*iamHandler).fetchMembers(context.Background(), f.handler.(*iamHandler).dir.Load())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearchFiltersEntries(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
		Members: []iam.Member{member("Bob", "/bob/", time.Now()), member("Alice", "/alice/", time.Now())},
	}, nil).Times(2)

	res, err := search(t, f.handler, "cn=root", "(cn=alice)")
	if err != nil {
		t.Fatal(err)
	}
	if res.ResultCode != ldap.LDAPResultSuccess || len(res.Entries) != 1 {
		t.Fatalf("expected exactly one entry, got %+v", res)
	}
	if res.Entries[0].DN != "cn=alice,ou=users,"+testBaseDN {
		t.Errorf("unexpected entry %s", res.Entries[0].DN)
	}

	res, err = search(t, f.handler, "cn=root", "(objectClass=posixAccount)")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 || res.Entries[0].DN != "cn=alice,ou=users,"+testBaseDN || res.Entries[1].DN != "cn=bob,ou=users,"+testBaseDN {
		t.Fatalf("expected alice then bob, got %+v", res.Entries)
	}
}

func TestSearchBackendErrorReturnsNothing(t *testing.T) {
	f := newFixture(t, defaultDirectory())
	boom := errors.New("throttled")

	gomock.InOrder(
		f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
			Members:     []iam.Member{member("Alice", "/alice/", time.Now()), member("Bob", "/bob/", time.Now())},
			IsTruncated: true,
			Marker:      "M",
		}, nil),
		f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "M").Return(nil, boom),
	)

	res, err := search(t, f.handler, "cn=root", "(objectClass=*)")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected unavailable wrapping the backend error, got %v", err)
	}
	if res.ResultCode != ldap.LDAPResultUnavailable || len(res.Entries) != 0 {
		t.Fatalf("expected unavailable without entries, got %+v", res)
	}
}

func TestSearchEmptyGroupIsUnavailable(t *testing.T) {
	f := newFixture(t, defaultDirectory())
	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{}, nil)

	res, err := search(t, f.handler, "cn=root", "(objectClass=*)")
	if !errors.Is(err, ErrUnavailable) || res.ResultCode != ldap.LDAPResultUnavailable {
		t.Fatalf("expected unavailable, got %v %v", res.ResultCode, err)
	}
}

func TestSearchWithoutGroupIsUnavailable(t *testing.T) {
	dir := defaultDirectory()
	dir.GroupName = ""
	f := newFixture(t, dir)

	res, _ := search(t, f.handler, "cn=root", "(objectClass=*)")
	if res.ResultCode != ldap.LDAPResultUnavailable {
		t.Fatalf("expected unavailable, got %v", res.ResultCode)
	}
}

func TestSearchRequiresRoot(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	res, err := search(t, f.handler, "cn=local", "(objectClass=*)")
	if !errors.Is(err, ErrInsufficientAccess) || res.ResultCode != ldap.LDAPResultInsufficientAccessRights {
		t.Fatalf("expected insufficient access, got %v %v", res.ResultCode, err)
	}
}

func TestSearchLocalTransport(t *testing.T) {
	dir := defaultDirectory()
	dir.RequireGID = intPtr(42)
	f := newFixture(t, dir, Local(true), PeerCredentialsReader(func(net.Conn) (int, int, error) {
		return 1000, 42, nil
	}))

	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
		Members: []iam.Member{member("Alice", "/alice/", time.Now())},
	}, nil)

	res, err := search(t, f.handler, "", "(uid=alice)")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected alice, got %+v", res.Entries)
	}
}

func TestSearchInvalidFilter(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	res, err := search(t, f.handler, "cn=root", "cn=alice")
	if err == nil || res.ResultCode != ldap.LDAPResultOperationsError {
		t.Fatalf("expected operations error, got %v %v", res.ResultCode, err)
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t, defaultDirectory())

	dir := defaultDirectory()
	dir.GroupName = "admins"
	dir.DefaultGID = 42
	f.handler.Reload(dir)

	f.client.EXPECT().GetGroupPage(gomock.Any(), "admins", "").Return(&iam.Page{
		Members: []iam.Member{member("Alice", "/alice/", time.Now())},
	}, nil)

	res, err := search(t, f.handler, "cn=root", "(gidNumber=42)")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected the reloaded settings to apply, got %+v", res.Entries)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t, defaultDirectory())
	conn := pipeConn(t)

	f.handler.Bind("cn=root", "s3cr3t", conn)
	if err := f.handler.Close("cn=root", conn); err != nil {
		t.Fatal(err)
	}

	if f.handler.(*iamHandler).roots.granted(conn) {
		t.Error("closed connection still holds the root bind")
	}
}

func TestHandlerWithoutMonitor(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := iam.NewMockClient(ctrl)
	client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").Return(&iam.Page{
		Members: []iam.Member{member("Alice", "/alice/", time.Now())},
	}, nil)

	s, err := secret.New("s3cr3t", "")
	if err != nil {
		t.Fatal(err)
	}
	h := NewIAMHandler(Directory(defaultDirectory()), Secret(s), Client(client))

	res, err := search(t, h, "cn=root", "(uid=alice)")
	if err != nil {
		t.Fatal(err)
	}
	if res.ResultCode != ldap.LDAPResultSuccess || len(res.Entries) != 1 {
		t.Fatalf("expected alice, got %v %+v", res.ResultCode, res.Entries)
	}
}

func TestSearchAfterContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, defaultDirectory(), Context(ctx))
	cancel()

	f.client.EXPECT().GetGroupPage(gomock.Any(), "ops", "").DoAndReturn(
		func(ctx context.Context, group, marker string) (*iam.Page, error) {
			return nil, ctx.Err()
		})

	res, err := search(t, f.handler, "cn=root", "(objectClass=*)")
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected a cancelled listing, got %v", err)
	}
	if res.ResultCode != ldap.LDAPResultUnavailable {
		t.Fatalf("expected unavailable, got %v", res.ResultCode)
	}
}
