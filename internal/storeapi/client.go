package storeapi

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/geovoxel/internal/genproto/storev1"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/model"
	"github.com/signalsfoundry/geovoxel/store"
)

var _ store.Store = (*Client)(nil)

// Client is a store.Store backed by a remote EntityStore server.
type Client struct {
	conn *grpc.ClientConn
	rpc  storev1.EntityStoreClient
	log  logging.Logger
}

// Dial connects to addr without transport security. Extra options are
// applied after the defaults.
func Dial(addr string, log logging.Logger, opts ...grpc.DialOption) (*Client, error) {
	if log == nil {
		log = logging.Noop()
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(RequestIDUnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(RequestIDStreamClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial store %s: %w", addr, err)
	}
	return &Client{conn: conn, rpc: storev1.NewEntityStoreClient(conn), log: log}, nil
}

// List implements store.Store.
func (c *Client) List(ctx context.Context, box model.BoundingBox) ([]model.PlacedEntity, error) {
	out, err := c.rpc.List(ctx, boxRequest(box))
	if err != nil {
		return nil, FromStatusError(err)
	}
	return entitiesFromList(out)
}

// Insert implements store.Store.
func (c *Client) Insert(ctx context.Context, e model.PlacedEntity) (string, error) {
	out, err := c.rpc.Insert(ctx, entityToStruct(e))
	if err != nil {
		return "", FromStatusError(err)
	}
	return out.GetValue(), nil
}

// Delete implements store.Store.
func (c *Client) Delete(ctx context.Context, id, requester string) error {
	if _, err := c.rpc.Delete(ctx, deleteRequest(id, requester)); err != nil {
		return FromStatusError(err)
	}
	return nil
}

// Watch implements store.Store. The channel closes when ctx is done or the
// stream breaks.
func (c *Client) Watch(ctx context.Context, box model.BoundingBox) (<-chan model.Change, error) {
	stream, err := c.rpc.Watch(ctx, boxRequest(box))
	if err != nil {
		return nil, FromStatusError(err)
	}

	ch := make(chan model.Change, store.DefaultFeedBuffer)
	go func() {
		defer close(ch)
		for {
			msg, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Debug(ctx, "watch stream ended", logging.Err(err))
				}
				return
			}
			change, err := changeFromStruct(msg)
			if err != nil {
				c.log.Warn(ctx, "skipping malformed change", logging.Err(err))
				continue
			}
			select {
			case ch <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
