// Copyright © 2018 One Concern

package metrics

import (
	"fmt"
	"path"
	"reflect"
)

// metricAdder allocates a measure for a tagged field
type metricAdder func(measure interface{}, metric, group string, tags map[string]string) interface{}

// supported struct tags, with their key in the decoded map
var structTags = map[string]string{
	"metric":      "metric",
	"unit":        "unit",
	"group":       "group",
	"description": "description",
	"extraviews":  "views",
	"tags":        "groupings",
}

func equalType(a, b interface{}) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// scanStruct walks a struct decorated with metric tags and allocates all declared measures.
//
// Nested structs (or pointers to structs) extend the metric path with their group tag.
// Slices, maps and unexported fields are ignored.
func scanStruct(parent string, adder metricAdder, m interface{}) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("scanStruct requires a pointer to a struct, got: %T", m))
	}
	walkStruct(parent, adder, rv.Elem())
}

func walkStruct(parent string, adder metricAdder, sv reflect.Value) {
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		fv := sv.Field(i)
		if !fv.CanSet() {
			continue
		}

		tags := fieldTags(field)
		group := path.Join(parent, tags["group"])

		if tags["metric"] == "" {
			switch {
			case fv.Kind() == reflect.Struct:
				walkStruct(group, adder, fv)
			case fv.Kind() == reflect.Ptr && fv.Type().Elem().Kind() == reflect.Struct:
				if fv.IsNil() {
					fv.Set(reflect.New(fv.Type().Elem()))
				}
				walkStruct(group, adder, fv.Elem())
			}
			continue
		}

		if fv.Kind() != reflect.Ptr {
			continue
		}
		if allocated := adder(fv.Interface(), tags["metric"], group, tags); allocated != nil {
			fv.Set(reflect.ValueOf(allocated))
		}
	}
}

// fieldTags decodes the tags decorating a field.
// Supported tags are:
//   - metric: the metric name
//   - unit: the unit of the measure, which determines its default view
//   - group: builds an additional path to the metric (e.g. root/path/group/{metric})
//   - description: adds this description to the metric and the associated views
//   - extraviews: builds additional views with alternate aggregators (count, sum, lastvalue)
//   - tags: the tag keys used to group rows in the views
func fieldTags(field reflect.StructField) map[string]string {
	tags := make(map[string]string, len(structTags))
	for tag, key := range structTags {
		if value, ok := field.Tag.Lookup(tag); ok {
			tags[key] = value
		}
	}
	return tags
}
