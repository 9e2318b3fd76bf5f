// Package registry implements the type and cost registry:
// estimate_size, the per-format cost table, and its load-adaptive
// variant. It has no knowledge of QoS, topics, or traces — internal/mw
// calls EstimateSize before stamping an envelope's SerializedBytes,
// and internal/sim calls CostOf to add a serialization_latency field to
// each rmw_publish trace event. AdaptiveCostOf has no caller outside
// this package's tests.
package registry

import "reflect"

// sizeOverheadBytes is the fixed per-object overhead charged for an
// opaque struct/pointer payload, on top of the sum of its fields —
// modeling a type tag and alignment padding a real serializer would
// add.
const sizeOverheadBytes = 8

// lengthPrefixBytes is charged for every variable-length value
// (string, sequence, mapping) to model a length-prefixed wire
// encoding.
const lengthPrefixBytes = 4

// EstimateSize recursively estimates the serialized size, in bytes, of
// an arbitrary payload's logical shape: scalars cost their
// natural width (1/2/4/8 bytes), strings cost their UTF-8 byte length
// plus a length prefix, sequences cost the sum of their element sizes
// plus a length prefix, mappings are symmetric (key+value sizes plus a
// length prefix), and opaque objects cost the sum over their fields
// plus a fixed overhead.
func EstimateSize(payload any) int64 {
	if payload == nil {
		return 0
	}
	return estimateValue(reflect.ValueOf(payload))
}

func estimateValue(v reflect.Value) int64 {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64, reflect.Float64:
		return 8

	case reflect.String:
		return int64(len(v.String())) + lengthPrefixBytes

	case reflect.Slice, reflect.Array:
		var sum int64
		for i := 0; i < v.Len(); i++ {
			sum += estimateValue(v.Index(i))
		}
		return sum + lengthPrefixBytes

	case reflect.Map:
		var sum int64
		iter := v.MapRange()
		for iter.Next() {
			sum += estimateValue(iter.Key())
			sum += estimateValue(iter.Value())
		}
		return sum + lengthPrefixBytes

	case reflect.Struct:
		var sum int64
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			sum += estimateValue(v.Field(i))
		}
		return sum + sizeOverheadBytes

	default:
		return sizeOverheadBytes
	}
}
