package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/birdscan-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
)

// Counter invokes the external counting service for one image. Errors are
// classified at this boundary: throttling comes back wrapping
// pkgerrors.ErrThrottled, terminal input rejection wraps pkgerrors.ErrRejected.
type Counter interface {
	Count(ctx context.Context, img []byte, name string) (int, error)
	Close() error
}

type counterService struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient

	targetLabel string
	callTimeout time.Duration
}

func NewCounter(log *logger.Logger, targetLabel string, callTimeout time.Duration) (Counter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(targetLabel) == "" {
		return nil, fmt.Errorf("target label required")
	}
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}

	ctx := context.Background()
	client, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &counterService{
		log:         log.With("service", "gcp.Counter", "target", targetLabel),
		client:      client,
		targetLabel: targetLabel,
		callTimeout: callTimeout,
	}, nil
}

func (s *counterService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *counterService) Count(ctx context.Context, img []byte, name string) (int, error) {
	if len(img) == 0 {
		return 0, fmt.Errorf("empty image %q: %w", name, pkgerrors.ErrRejected)
	}

	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_OBJECT_LOCALIZATION},
				},
			},
		},
	}

	resp, err := s.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return 0, classifyGRPC(err, name)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return 0, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil {
		return 0, classifyRPCStatus(codes.Code(r0.Error.Code), r0.Error.Message, name)
	}

	count := 0
	for _, ann := range r0.LocalizedObjectAnnotations {
		if ann == nil {
			continue
		}
		if strings.EqualFold(ann.Name, s.targetLabel) {
			count++
		}
	}
	return count, nil
}

func classifyGRPC(err error, name string) error {
	return classifyRPCStatus(status.Code(err), err.Error(), name)
}

func classifyRPCStatus(code codes.Code, msg, name string) error {
	switch code {
	case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("count %q: %s: %w", name, msg, pkgerrors.ErrThrottled)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("count %q: %s: %w", name, msg, pkgerrors.ErrRejected)
	default:
		return fmt.Errorf("count %q: %s (code %s)", name, msg, code)
	}
}
