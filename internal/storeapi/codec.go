package storeapi

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geovoxel/model"
)

// Struct field names of the wire contract declared in
// proto/geovoxel/store/v1/store.proto.
const (
	fieldID        = "id"
	fieldLat       = "lat"
	fieldLon       = "lon"
	fieldAlt       = "alt"
	fieldColor     = "color"
	fieldOwnerID   = "owner_id"
	fieldCreatedAt = "created_at_ms"

	fieldBox       = "box"
	fieldMinLat    = "min_lat"
	fieldMinLng    = "min_lng"
	fieldMaxLat    = "max_lat"
	fieldMaxLng    = "max_lng"
	fieldRequester = "requester"

	fieldType   = "type"
	fieldEntity = "entity"
)

func entityToStruct(e model.PlacedEntity) *structpb.Struct {
	var created float64
	if !e.CreatedAt.IsZero() {
		created = float64(e.CreatedAt.UnixMilli())
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldID:        structpb.NewStringValue(e.ID),
		fieldLat:       structpb.NewNumberValue(e.Lat),
		fieldLon:       structpb.NewNumberValue(e.Lon),
		fieldAlt:       structpb.NewNumberValue(e.Alt),
		fieldColor:     structpb.NewStringValue(e.Color),
		fieldOwnerID:   structpb.NewStringValue(e.OwnerID),
		fieldCreatedAt: structpb.NewNumberValue(created),
	}}
}

func entityFromStruct(s *structpb.Struct) (model.PlacedEntity, error) {
	if s == nil {
		return model.PlacedEntity{}, fmt.Errorf("entity is required")
	}
	f := s.GetFields()
	e := model.PlacedEntity{
		ID:      f[fieldID].GetStringValue(),
		Lat:     f[fieldLat].GetNumberValue(),
		Lon:     f[fieldLon].GetNumberValue(),
		Alt:     f[fieldAlt].GetNumberValue(),
		Color:   f[fieldColor].GetStringValue(),
		OwnerID: f[fieldOwnerID].GetStringValue(),
	}
	if ms := int64(f[fieldCreatedAt].GetNumberValue()); ms != 0 {
		e.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return e, nil
}

func entitiesToList(es []model.PlacedEntity) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(es))}
	for _, e := range es {
		out.Values = append(out.Values, structpb.NewStructValue(entityToStruct(e)))
	}
	return out
}

func entitiesFromList(l *structpb.ListValue) ([]model.PlacedEntity, error) {
	out := make([]model.PlacedEntity, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		e, err := entityFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func boxToStruct(b model.BoundingBox) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldMinLat: structpb.NewNumberValue(b.MinLat),
		fieldMinLng: structpb.NewNumberValue(b.MinLng),
		fieldMaxLat: structpb.NewNumberValue(b.MaxLat),
		fieldMaxLng: structpb.NewNumberValue(b.MaxLng),
	}}
}

func boxFromStruct(s *structpb.Struct) model.BoundingBox {
	f := s.GetFields()
	return model.BoundingBox{
		MinLat: f[fieldMinLat].GetNumberValue(),
		MinLng: f[fieldMinLng].GetNumberValue(),
		MaxLat: f[fieldMaxLat].GetNumberValue(),
		MaxLng: f[fieldMaxLng].GetNumberValue(),
	}
}

// boxRequest wraps a box for List and Watch. A missing box means the whole
// world.
func boxRequest(b model.BoundingBox) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldBox: structpb.NewStructValue(boxToStruct(b)),
	}}
}

func boxFromRequest(req *structpb.Struct) model.BoundingBox {
	return boxFromStruct(req.GetFields()[fieldBox].GetStructValue())
}

func deleteRequest(id, requester string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldID:        structpb.NewStringValue(id),
		fieldRequester: structpb.NewStringValue(requester),
	}}
}

func changeToStruct(c model.Change) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:   structpb.NewStringValue(c.Type.String()),
		fieldEntity: structpb.NewStructValue(entityToStruct(c.Entity)),
	}}
}

func changeFromStruct(s *structpb.Struct) (model.Change, error) {
	f := s.GetFields()
	var typ model.ChangeType
	switch kind := f[fieldType].GetStringValue(); kind {
	case model.ChangeCreated.String():
		typ = model.ChangeCreated
	case model.ChangeDeleted.String():
		typ = model.ChangeDeleted
	default:
		return model.Change{}, fmt.Errorf("unknown change type %q", kind)
	}
	e, err := entityFromStruct(f[fieldEntity].GetStructValue())
	if err != nil {
		return model.Change{}, err
	}
	return model.Change{Type: typ, Entity: e}, nil
}
