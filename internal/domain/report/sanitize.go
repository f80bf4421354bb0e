package report

import (
	"math"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Sweep walks the report graph and replaces every non-finite float pointer
// (NaN, ±Inf) with nil. encoding/json rejects non-finite values, so this
// runs once before a report is serialized or persisted.
func Sweep(rep *AnalysisReport) {
	if rep == nil {
		return
	}
	sweep(reflect.ValueOf(rep).Elem())
}

func sweep(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr:
		if !v.IsNil() {
			sweep(v.Elem())
		}
	case reflect.Struct:
		if v.Type() == timeType {
			return
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanSet() {
				continue
			}
			if isFloatPtr(f) {
				clearNonFinite(f)
				continue
			}
			sweep(f)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			e := v.Index(i)
			if isFloatPtr(e) {
				clearNonFinite(e)
				continue
			}
			sweep(e)
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			mv := v.MapIndex(k)
			if isFloatPtr(mv) {
				if !mv.IsNil() && !finite(mv.Elem().Float()) {
					v.SetMapIndex(k, reflect.Zero(mv.Type()))
				}
				continue
			}
			// Map values are not addressable; sweep a copy and store it back.
			cp := reflect.New(mv.Type()).Elem()
			cp.Set(mv)
			sweep(cp)
			v.SetMapIndex(k, cp)
		}
	}
}

func isFloatPtr(v reflect.Value) bool {
	return v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Float64
}

func clearNonFinite(v reflect.Value) {
	if v.IsNil() {
		return
	}
	if !finite(v.Elem().Float()) {
		v.Set(reflect.Zero(v.Type()))
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
