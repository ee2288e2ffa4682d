// Package storeapi exposes a store.Store over the EntityStore gRPC service
// and provides the matching client.
package storeapi

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/geovoxel/internal/genproto/storev1"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/internal/observability"
	"github.com/signalsfoundry/geovoxel/store"
)

// Server implements EntityStore on top of a store.Store.
type Server struct {
	storev1.UnimplementedEntityStoreServer

	store store.Store
	log   logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServer constructs a Server bound to st.
func NewServer(st store.Store, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{store: st, log: log, stop: make(chan struct{})}
}

// Shutdown ends every open Watch stream so grpc.Server.GracefulStop can
// return. New watches are refused afterwards.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Register adds s to reg.
func Register(reg grpc.ServiceRegistrar, s *Server) {
	storev1.RegisterEntityStoreServer(reg, s)
}

// ServerOptions returns the interceptor chain every store server uses:
// request ids, tracing and RPC metrics. collector may be nil.
func ServerOptions(log logging.Logger, collector *observability.RPCCollector) []grpc.ServerOption {
	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	stream := []grpc.StreamServerInterceptor{
		RequestIDStreamServerInterceptor(log),
		TracingStreamServerInterceptor(),
	}
	if collector != nil {
		unary = append(unary, collector.UnaryServerInterceptor())
		stream = append(stream, collector.StreamServerInterceptor())
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// List returns the entities inside the requested box.
func (s *Server) List(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	box := boxFromRequest(in)
	ctx, span := startChildSpan(ctx, "entity/list", "")
	defer span.End()

	entities, err := s.store.List(ctx, box)
	if err != nil {
		s.logger(ctx).Warn(ctx, "List failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return entitiesToList(entities), nil
}

// Insert stores a new entity and returns its id.
func (s *Server) Insert(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	reqLog := s.logger(ctx).With(logging.String("operation", "insert"))
	e, err := entityFromStruct(in)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}
	e.ID = ""

	ctx, span := startChildSpan(ctx, "entity/insert", "")
	defer span.End()

	id, err := s.store.Insert(ctx, e)
	if err != nil {
		reqLog.Debug(ctx, "Insert rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	reqLog.Info(ctx, "entity inserted",
		logging.String("entity_id", id),
		logging.String("owner_id", e.OwnerID),
	)
	return wrapperspb.String(id), nil
}

// Delete removes an entity on behalf of the requester.
func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	f := in.GetFields()
	id := f[fieldID].GetStringValue()
	requester := f[fieldRequester].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	reqLog := s.logger(ctx).With(
		logging.String("operation", "delete"),
		logging.String("entity_id", id),
	)

	ctx, span := startChildSpan(ctx, "entity/delete", id)
	defer span.End()

	if err := s.store.Delete(ctx, id, requester); err != nil {
		reqLog.Debug(ctx, "Delete rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	reqLog.Info(ctx, "entity deleted", logging.String("requester", requester))
	return &emptypb.Empty{}, nil
}

// Watch streams changes inside the requested box until the client goes away
// or the store drops the subscription.
func (s *Server) Watch(in *structpb.Struct, stream storev1.EntityStore_WatchServer) error {
	ctx := stream.Context()
	select {
	case <-s.stop:
		return status.Error(codes.Unavailable, "server shutting down")
	default:
	}
	box := boxFromRequest(in)
	ch, err := s.store.Watch(ctx, box)
	if err != nil {
		return ToStatusError(err)
	}
	log := s.logger(ctx)
	log.Debug(ctx, "watch opened")

	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return s.feedClosed(ctx)
			}
			if err := stream.Send(changeToStruct(c)); err != nil {
				return err
			}
		case <-s.stop:
			return status.Error(codes.Unavailable, "server shutting down")
		}
	}
}

func (s *Server) feedClosed(ctx context.Context) error {
	log := s.logger(ctx)
	if ctx.Err() != nil {
		log.Debug(ctx, "watch closed by client")
		return nil
	}
	log.Warn(ctx, "watch dropped by store")
	return status.Error(codes.Unavailable, "change feed closed")
}
