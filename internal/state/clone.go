package state

import (
	"fmt"
	"reflect"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
)

// Cloner — значение со своей стратегией копирования.
//
// Нужен для значений, которые нельзя скопировать структурно:
// открытые дескрипторы, буферы с внешним владельцем и т.п.
type Cloner interface {
	CloneValue() any
}

// DeepCopy возвращает структурную копию значения.
//
// Копируются map, slice, массивы, указатели и структуры (экспортируемые
// поля рекурсивно, неэкспортируемые как есть). Строки, числа, bool,
// time.Time возвращаются без изменений.
//
// Значения, реализующие Cloner, копируются своим методом CloneValue.
// Цикл ссылок, канал, функция или unsafe.Pointer → ErrSerialization:
// для таких значений нужна собственная стратегия копирования.
func DeepCopy(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64, float32, int, int64, int32, uint, uint64, time.Time:
		return val, nil
	case domain.FileRef:
		return val, nil
	case Cloner:
		return val.CloneValue(), nil
	}

	c := &cloner{path: make(map[uintptr]bool)}
	out, err := c.copy(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// cloner отслеживает ссылки на текущем пути обхода для поиска циклов.
type cloner struct {
	path map[uintptr]bool
}

func (c *cloner) enter(ptr uintptr) error {
	if ptr == 0 {
		return nil
	}
	if c.path[ptr] {
		return fmt.Errorf("%w: circular reference", ErrSerialization)
	}
	c.path[ptr] = true
	return nil
}

func (c *cloner) leave(ptr uintptr) {
	delete(c.path, ptr)
}

func (c *cloner) copy(v reflect.Value) (reflect.Value, error) {
	if !v.IsValid() {
		return v, nil
	}

	if v.CanInterface() {
		if cl, ok := v.Interface().(Cloner); ok && v.Kind() != reflect.Interface {
			return reflect.ValueOf(cl.CloneValue()), nil
		}
	}

	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return reflect.Value{}, fmt.Errorf("%w: unsupported kind %s", ErrSerialization, v.Kind())

	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		inner, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil

	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		ptr := v.Pointer()
		if err := c.enter(ptr); err != nil {
			return reflect.Value{}, err
		}
		defer c.leave(ptr)

		inner, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(inner)
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		ptr := v.Pointer()
		if err := c.enter(ptr); err != nil {
			return reflect.Value{}, err
		}
		defer c.leave(ptr)

		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, err := c.copy(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), valueOrZero(item, v.Type().Elem()))
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		ptr := v.Pointer()
		if v.Len() > 0 {
			if err := c.enter(ptr); err != nil {
				return reflect.Value{}, err
			}
			defer c.leave(ptr)
		}

		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(valueOrZero(item, v.Type().Elem()))
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			item, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(valueOrZero(item, v.Type().Elem()))
		}
		return out, nil

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			item, err := c.copy(v.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(valueOrZero(item, v.Type().Field(i).Type))
		}
		return out, nil

	default:
		return v, nil
	}
}

// valueOrZero заменяет невалидное значение (nil внутри interface) на нулевое.
func valueOrZero(v reflect.Value, t reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(t)
	}
	if v.Type() != t && v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out
	}
	return v
}

// copyValues копирует Value Bag. Значения, которые не удалось скопировать,
// сохраняются по исходной ссылке.
func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if cp, err := DeepCopy(v); err == nil {
			out[k] = cp
		} else {
			out[k] = v
		}
	}
	return out
}
