package middleware

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for operator request signing
	HeaderAccessKey = "X-Access-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxCaller    = "caller"
	CtxRequestID = "request_id"
	CtxOperator  = "operator"
)

// SigningOptions bounds signed operator requests.
type SigningOptions struct {
	TimestampTolerance time.Duration
	NonceTTL           time.Duration
}

// DefaultSigningOptions returns the limits used when none are configured.
func DefaultSigningOptions() SigningOptions {
	return SigningOptions{
		TimestampTolerance: 60 * time.Second,
		NonceTTL:           120 * time.Second,
	}
}

// OperatorAuth verifies HMAC-SHA256 signed requests from admin and crank
// operators and stores the operator as the request caller.
// Pipeline: Check timestamp -> Resolve operator -> Check nonce -> Verify signature -> Check role.
func OperatorAuth(
	directory ports.OperatorDirectory,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	opts SigningOptions,
	log zerolog.Logger,
	roles ...domain.Role,
) gin.HandlerFunc {
	if opts.TimestampTolerance <= 0 || opts.NonceTTL <= 0 {
		opts = DefaultSigningOptions()
	}
	return func(c *gin.Context) {
		accessKey := c.GetHeader(HeaderAccessKey)
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if accessKey == "" || signature == "" || timestampStr == "" || nonce == "" {
			abort(c, apperror.ErrInvalidAccessKey())
			return
		}

		// Step 1: Timestamp check
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			abort(c, apperror.ErrTimestampExpired())
			return
		}
		if math.Abs(float64(time.Now().Unix()-timestamp)) > opts.TimestampTolerance.Seconds() {
			abort(c, apperror.ErrTimestampExpired())
			return
		}

		// Step 2: Resolve operator and check nonce
		op, err := directory.GetByAccessKey(c.Request.Context(), accessKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve operator")
			abort(c, apperror.InternalError(err))
			return
		}
		if op == nil {
			abort(c, apperror.ErrInvalidAccessKey())
			return
		}

		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), op.ID.String(), nonce, opts.NonceTTL)
		if err != nil {
			log.Warn().Err(err).Msg("nonce store error, allowing request")
		} else if !isNew {
			abort(c, apperror.ErrNonceUsed())
			return
		}

		// Step 3: Signature verification
		secretKey, err := encSvc.Decrypt(op.SecretKeyEnc)
		if err != nil {
			log.Error().Err(err).Str("operator", op.ID.String()).Msg("failed to decrypt operator secret key")
			abort(c, apperror.ErrEncryptionFailure(err))
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abort(c, apperror.Validation("cannot read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			c.Request.URL.Path,
			timestamp,
			nonce,
			string(bodyBytes),
		)
		if !sigSvc.Verify(secretKey, canonical, signature) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}

		caller := op.Caller()
		if !roleAllowed(caller.Role, roles) {
			abort(c, apperror.ErrUnauthorized())
			return
		}

		c.Set(CtxCaller, caller)
		c.Set(CtxOperator, op)
		c.Next()
	}
}

// JWTAuth validates bearer tokens issued to buyers and merchants. When roles
// are given the token's role must be one of them.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			abort(c, apperror.ErrInvalidToken())
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			abort(c, apperror.ErrInvalidToken())
			return
		}
		if !roleAllowed(claims.Role, roles) {
			abort(c, apperror.ErrUnauthorized())
			return
		}

		c.Set(CtxCaller, domain.Caller{ID: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

// EitherAuth dispatches to operator when the request carries an operator
// access key and to bearer otherwise.
func EitherAuth(bearer, operator gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderAccessKey) != "" {
			operator(c)
			return
		}
		bearer(c)
	}
}

// CallerFrom returns the authenticated caller stored by JWTAuth or OperatorAuth.
func CallerFrom(c *gin.Context) (domain.Caller, bool) {
	v, ok := c.Get(CtxCaller)
	if !ok {
		return domain.Caller{}, false
	}
	caller, ok := v.(domain.Caller)
	return caller, ok
}

func roleAllowed(role domain.Role, roles []domain.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

// RequestID propagates X-Request-ID, generating one when absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if caller, ok := CallerFrom(c); ok {
			event = event.Str("caller", caller.ID.String()).Str("role", string(caller.Role))
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
