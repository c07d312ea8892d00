package handler

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/glauth/iamldap/internal/monitoring"
	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/iamldap/pkg/secret"
	"github.com/glauth/iamldap/pkg/stats"
	"github.com/glauth/ldap"
)

type iamHandler struct {
	log             *zerolog.Logger
	dir             atomic.Pointer[config.Directory]
	secret          *secret.Secret
	client          iam.Client
	local           bool
	peerCredentials PeerCredentialsFunc
	roots           rootSessions

	monitor monitoring.MonitorInterface
	tracer  trace.Tracer
	ctx     context.Context
}

// NewIAMHandler serves the members of an IAM group as POSIX accounts
func NewIAMHandler(opts ...Option) Handler {
	options := newOptions(opts...)

	h := &iamHandler{
		log:             options.Logger,
		secret:          options.Secret,
		client:          options.Client,
		local:           options.Local,
		peerCredentials: options.PeerCredentials,
		monitor:         options.Monitor,
		tracer:          options.Tracer,
		ctx:             options.Context,
	}

	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}
	if h.tracer == nil {
		h.tracer = noop.NewTracerProvider().Tracer("handler")
	}
	if h.peerCredentials == nil {
		h.peerCredentials = PeerCredentials
	}
	if h.ctx == nil {
		h.ctx = context.Background()
	}
	if h.monitor == nil {
		h.monitor = monitoring.NewNoopMonitor()
	}

	h.Reload(options.Directory)

	return h
}

func (h *iamHandler) Reload(dir config.Directory) {
	d := dir
	h.dir.Store(&d)
}

func (h *iamHandler) Bind(bindDN, bindSimplePw string, conn net.Conn) (result ldap.LDAPResultCode, err error) {
	_, span := h.tracer.Start(h.ctx, "handler.iamHandler.Bind")
	defer span.End()

	start := time.Now()
	defer func() {
		h.monitor.SetResponseTimeMetric(
			map[string]string{"operation": "bind", "status": fmt.Sprintf("%v", result)},
			time.Since(start).Seconds(),
		)
	}()

	stats.Frontend.Add("bind_reqs", 1)
	h.log.Debug().Str("binddn", bindDN).Str("src", remoteAddr(conn)).Msg("Bind request")

	dn := normalizeDN(bindDN)
	span.SetAttributes(attribute.String("ldap.binddn", dn))

	switch dn {
	case rootDN:
		if h.secret == nil || !h.secret.Matches(bindSimplePw) {
			h.roots.revoke(conn)
			stats.Frontend.Add("bind_errors", 1)
			h.log.Warn().Str("binddn", bindDN).Str("src", remoteAddr(conn)).Msg("Bind Error: invalid credentials")
			span.SetStatus(codes.Error, "invalid credentials")
			return ldap.LDAPResultInvalidCredentials, nil
		}
		h.roots.grant(conn)
	case localDN:
		h.roots.revoke(conn)
	default:
		h.roots.revoke(conn)
		stats.Frontend.Add("bind_errors", 1)
		h.log.Warn().Str("binddn", bindDN).Str("src", remoteAddr(conn)).Msg("Bind Error: unknown bind DN")
		span.SetStatus(codes.Error, "unknown bind DN")
		return ldap.LDAPResultInvalidCredentials, nil
	}

	stats.Frontend.Add("bind_successes", 1)
	h.log.Debug().Str("binddn", bindDN).Str("src", remoteAddr(conn)).Msg("Bind success")
	return ldap.LDAPResultSuccess, nil
}

func (h *iamHandler) Search(boundDN string, searchReq ldap.SearchRequest, conn net.Conn) (result ldap.ServerSearchResult, err error) {
	ctx, span := h.tracer.Start(h.ctx, "handler.iamHandler.Search")
	defer span.End()

	start := time.Now()
	defer func() {
		h.monitor.SetResponseTimeMetric(
			map[string]string{"operation": "search", "status": fmt.Sprintf("%v", result.ResultCode)},
			time.Since(start).Seconds(),
		)
		if err != nil {
			stats.Frontend.Add("search_errors", 1)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	stats.Frontend.Add("search_reqs", 1)

	dir := h.dir.Load()

	h.log.Debug().
		Str("binddn", boundDN).
		Str("basedn", searchReq.BaseDN).
		Str("filter", searchReq.Filter).
		Str("src", remoteAddr(conn)).
		Msg("Search request")

	span.SetAttributes(
		attribute.String("ldap.basedn", searchReq.BaseDN),
		attribute.String("ldap.filter", searchReq.Filter),
	)

	if err := h.authorize(boundDN, conn, dir); err != nil {
		return ldap.ServerSearchResult{ResultCode: ldap.LDAPResultInsufficientAccessRights}, fmt.Errorf("Search Error: %w", err)
	}

	filter, err := ldap.CompileFilter(searchReq.Filter)
	if err != nil {
		return ldap.ServerSearchResult{ResultCode: ldap.LDAPResultOperationsError}, fmt.Errorf("Search Error: error parsing filter: %s", searchReq.Filter)
	}

	set, err := h.fetchMembers(ctx, dir)
	if err != nil {
		return ldap.ServerSearchResult{ResultCode: ldap.LDAPResultUnavailable}, fmt.Errorf("Search Error: %w", err)
	}

	if len(set.users) == 0 {
		h.log.Warn().Str("group", dir.GroupName).Msg("no users found")
		return ldap.ServerSearchResult{ResultCode: ldap.LDAPResultUnavailable}, fmt.Errorf("Search Error: %w: no users found", ErrUnavailable)
	}

	entries := []*ldap.Entry{}
	for _, e := range set.entries() {
		entry := e.ToLDAP()
		keep, code := ldap.ServerApplyFilter(filter, entry)
		if code != ldap.LDAPResultSuccess {
			return ldap.ServerSearchResult{ResultCode: code}, fmt.Errorf("Search Error: unable to apply filter %s", searchReq.Filter)
		}
		if keep {
			entries = append(entries, entry)
		}
	}

	stats.Frontend.Add("search_successes", 1)
	h.log.Debug().Str("filter", searchReq.Filter).Int("entries", len(entries)).Msg("AP: Search OK")

	return ldap.ServerSearchResult{Entries: entries, Referrals: []string{}, Controls: []ldap.Control{}, ResultCode: ldap.LDAPResultSuccess}, nil
}

func (h *iamHandler) Close(boundDN string, conn net.Conn) error {
	h.roots.revoke(conn)
	stats.Frontend.Add("closes", 1)
	h.log.Debug().Str("binddn", boundDN).Str("src", remoteAddr(conn)).Msg("Close")
	return nil
}
