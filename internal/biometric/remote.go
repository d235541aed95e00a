package biometric

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

const (
	remoteKeyHeader   = "Ocp-Apim-Subscription-Key"
	remoteDetectPath  = "/face/v1.0/detect?returnFaceId=true&recognitionModel=recognition_04&detectionModel=detection_03"
	remoteVerifyPath  = "/face/v1.0/verify"
	remoteMaxBodySize = 1 << 20

	remoteFaceNotFound = "FaceNotFound"
)

// RemoteProvider delegates detection and verification to a hosted face API.
// References are face handles issued by the service.
type RemoteProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	handles  *cache.Cache
	bounds   Bounds
}

type remoteFace struct {
	FaceID        string `json:"faceId"`
	FaceRectangle struct {
		Top    int `json:"top"`
		Left   int `json:"left"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"faceRectangle"`
}

type remoteVerifyRequest struct {
	FaceID1 string `json:"faceId1"`
	FaceID2 string `json:"faceId2"`
}

type remoteVerifyResponse struct {
	IsIdentical bool    `json:"isIdentical"`
	Confidence  float64 `json:"confidence"`
}

type remoteError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewRemoteProvider fails with *ProviderUnavailableError when credentials are
// missing. client may be nil.
func NewRemoteProvider(cfg config.RemoteConfig, client *http.Client) (*RemoteProvider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ProviderUnavailableError{Provider: "Remote", Err: ErrMissingCredentials}
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &RemoteProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		client:   client,
		limiter:  rate.NewLimiter(limit, max(cfg.Burst, 1)),
		handles:  cache.New(cfg.FaceIDTTL, cfg.FaceIDTTL/2),
		bounds:   remoteBounds,
	}, nil
}

func (p *RemoteProvider) Name() string { return "Remote" }
func (p *RemoteProvider) Kind() Kind   { return KindRemote }
func (p *RemoteProvider) Close() error {
	p.handles.Flush()
	return nil
}

func (p *RemoteProvider) DetectFace(ctx context.Context, img []byte) (*Probe, error) {
	info, err := Inspect(img)
	if err != nil {
		return nil, detectionError(p.Name(), err)
	}
	if err := p.bounds.Check(info); err != nil {
		return nil, detectionError(p.Name(), err)
	}
	decoded, err := decodeImage(img)
	if err != nil {
		return nil, detectionError(p.Name(), err)
	}

	sum := sha256.Sum256(img)
	key := hex.EncodeToString(sum[:])
	if handle, ok := p.handles.Get(key); ok {
		return &Probe{
			Reference: NewHandleReference(KindRemote, handle.(string)),
			Image:     decoded,
			Format:    info.Format,
			Faces:     1,
		}, nil
	}

	var faces []remoteFace
	if err := p.do(ctx, "detect", remoteDetectPath, "application/octet-stream", img, &faces); err != nil {
		return nil, detectionError(p.Name(), err)
	}
	if len(faces) == 0 || faces[0].FaceID == "" {
		return nil, nil
	}
	if len(faces) > 1 {
		slog.Debug("remote service found several faces, using the first", "faces", len(faces))
	}

	p.handles.Set(key, faces[0].FaceID, cache.DefaultExpiration)
	return &Probe{
		Reference: NewHandleReference(KindRemote, faces[0].FaceID),
		Image:     decoded,
		Format:    info.Format,
		Faces:     len(faces),
	}, nil
}

func (p *RemoteProvider) Compare(ctx context.Context, ref FaceReference, probe *Probe) (MatchResult, error) {
	if probe == nil {
		return noMatch(p.Name(), ReasonNoFace), nil
	}
	stored, err := ref.Handle()
	if err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}
	probeHandle, err := probe.Reference.Handle()
	if err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}

	body, err := json.Marshal(remoteVerifyRequest{FaceID1: stored, FaceID2: probeHandle})
	if err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}
	var resp remoteVerifyResponse
	if err := p.do(ctx, "verify", remoteVerifyPath, "application/json", body, &resp); err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}

	return MatchResult{
		IsMatch:    resp.IsIdentical,
		Confidence: clamp01(resp.Confidence),
		Distance:   1 - clamp01(resp.Confidence),
		Provider:   p.Name(),
	}, nil
}

func (p *RemoteProvider) VerifyFaces(ctx context.Context, ref FaceReference, img []byte) (MatchResult, error) {
	return verifyImage(ctx, p, ref, img)
}

func (p *RemoteProvider) EnrollFace(ctx context.Context, img []byte) (*Enrollment, error) {
	return enrollImage(ctx, p, img)
}

// do sends one rate-limited request and decodes a JSON reply into out.
func (p *RemoteProvider) do(ctx context.Context, op, path, contentType string, body []byte, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(remoteKeyHeader, p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		observability.RemoteRequests.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	observability.RemoteRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	observability.InferenceDuration.WithLabelValues("remote_" + op).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, remoteMaxBodySize))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr remoteError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			// faceId handles live about a day on the service side
			if apiErr.Error.Code == remoteFaceNotFound {
				return fmt.Errorf("%s: %w: %s", op, ErrReferenceExpired, apiErr.Error.Message)
			}
			return fmt.Errorf("%s: status %d: %s: %s", op, resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("%s: status %d", op, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
