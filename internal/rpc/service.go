// Package rpc serves vt.v1.DogService over gRPC.
package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/unajo/vt/internal/delay"
	"github.com/unajo/vt/internal/mw"
	"github.com/unajo/vt/internal/rpc/vtpb"
)

// DogService implements vtpb.DogServiceServer on top of the delay service.
type DogService struct {
	svc *delay.Service
	sem *mw.Semaphore
}

// NewDogService shares sem with the HTTP delay endpoint. A nil sem means
// no in-flight cap.
func NewDogService(svc *delay.Service, sem *mw.Semaphore) *DogService {
	return &DogService{svc: svc, sem: sem}
}

func (s *DogService) All(context.Context, *emptypb.Empty) (*vtpb.DogsResponse, error) {
	dogs := s.svc.Dogs()
	out := &vtpb.DogsResponse{Dogs: make([]vtpb.Dog, 0, len(dogs))}
	for _, d := range dogs {
		out.Dogs = append(out.Dogs, vtpb.Dog{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	return out, nil
}

// Delay always answers with done/message for upstream failures; only a
// malformed request or a full endpoint is an RPC error.
func (s *DogService) Delay(ctx context.Context, req *vtpb.DelayRequest) (*vtpb.DelayResponse, error) {
	if req.Seconds < 0 {
		return nil, status.Error(codes.InvalidArgument, delay.ErrInvalidSeconds.Error())
	}
	if !s.sem.TryAcquire() {
		return nil, status.Errorf(codes.ResourceExhausted, "delay is at max concurrency (%d)", s.sem.Cap())
	}
	defer s.sem.Release()

	resp, err := s.svc.Handle(ctx, req.Seconds)
	if errors.Is(err, delay.ErrInvalidSeconds) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &vtpb.DelayResponse{Done: resp.Done, Message: resp.Message}, nil
}
