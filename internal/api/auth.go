package api

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"slotbook/internal/config"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
)

type AuthInterceptor struct {
	cfg *config.APIConfig

	clientsByAPIKey map[string]config.APIClientKey
	limiter         *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	return &AuthInterceptor{
		cfg:             cfg,
		clientsByAPIKey: m,
		limiter:         newRateLimiter(cfg),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.cfg.Enabled {
			return handler(ctx, req)
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(ctx, info.FullMethod); err != nil {
				return nil, err
			}
		}
		if err := a.checkRateLimit(ctx); err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	actorIDHeader         = "x-actor-id"
	actorRoleHeader       = "x-actor-role"
	permReadAvailability  = "read:availability"
	permWriteBookings     = "write:bookings"
	permWriteHolds        = "write:holds"
	clientKeyUnknown      = "unknown"
)

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKey := first(md.Get(a.apiKeyHeader()))
	extra := first(md.Get(a.extraHeader()))
	if apiKey == "" || extra == "" {
		return status.Error(codes.Unauthenticated, "missing api key headers")
	}

	client, ok := a.clientsByAPIKey[apiKey]
	if !ok {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}

	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid extra header")
	}

	if !hasPermission(client, requiredPermission(fullMethod)) {
		return status.Error(codes.PermissionDenied, "permission denied")
	}
	return nil
}

func (a *AuthInterceptor) apiKeyHeader() string {
	if h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)); h != "" {
		return h
	}
	return apiKeyHeaderDefault
}

func (a *AuthInterceptor) extraHeader() string {
	if h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderExtra)); h != "" {
		return h
	}
	return apiExtraHeaderDefault
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func requiredPermission(fullMethod string) string {
	switch fullMethod {
	case methodListSlots:
		return permReadAvailability
	case methodCommitBooking:
		return permWriteBookings
	case methodCreateHold, methodDeleteHold:
		return permWriteHolds
	default:
		return ""
	}
}

func (a *AuthInterceptor) checkRateLimit(ctx context.Context) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	if !a.limiter.allow(a.clientKey(ctx)) {
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return nil
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.apiKeyHeader())); apiKey != "" {
		return apiKey
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// actorFromMetadata reads the caller identity forwarded by the gateway.
func actorFromMetadata(ctx context.Context) (models.Actor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	id := first(md.Get(actorIDHeader))
	if id == "" {
		return models.Actor{}, status.Error(codes.Unauthenticated, "missing actor headers")
	}
	return models.Actor{ID: id, Role: models.ParseRole(first(md.Get(actorRoleHeader)))}, nil
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := logging.Component(logger, "grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := status.Code(err)
		metrics.IncGRPC(info.FullMethod, code.String())

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		event := base.Info()
		if code == codes.Internal || code == codes.Unavailable {
			event = base.Error().Err(err)
		}
		event.
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

const requestIDMetadataKey = "x-request-id"

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}
