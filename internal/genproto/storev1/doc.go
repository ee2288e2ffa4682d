// Package storev1 holds the gRPC stubs for proto/geovoxel/store/v1. The
// service only uses well-known message types, so there is no message code.
package storev1

//go:generate protoc -I ../../../proto --go-grpc_out=. --go-grpc_opt=module=github.com/signalsfoundry/geovoxel/internal/genproto/storev1 geovoxel/store/v1/store.proto
