package edgez

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Measure is a single statistic computed over one partition.
type Measure[K comparable] struct {
	Key   K
	Value float64
}

func (m Measure[K]) String() string {
	return fmt.Sprintf("%v=%g", m.Key, m.Value)
}

// Summary holds the common statistics of one partition.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Summary[K comparable] struct {
	Key    K
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

func (s Summary[K]) String() string {
	return fmt.Sprintf("%v: count=%d min=%g max=%g mean=%g stddev=%g", s.Key, s.Count, s.Min, s.Max, s.Mean, s.StdDev)
}

func measure[T any, K comparable](value func(T) float64, fn func(stats.Float64Data) (float64, error)) AggregateFunc[T, K, Measure[K]] {
	return func(items []T, key K) (Measure[K], bool, error) {
		if len(items) == 0 {
			return Measure[K]{}, false, nil
		}
		v, err := fn(values(items, value))
		if err != nil {
			return Measure[K]{}, false, err
		}
		return Measure[K]{Key: key, Value: v}, true, nil
	}
}

func values[T any](items []T, value func(T) float64) stats.Float64Data {
	data := make(stats.Float64Data, len(items))
	for i, item := range items {
		data[i] = value(item)
	}
	return data
}

// Min aggregates the smallest value of a partition.
func Min[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Measure[K]] {
	return measure[T, K](value, stats.Min)
}

// Max aggregates the largest value of a partition.
func Max[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Measure[K]] {
	return measure[T, K](value, stats.Max)
}

// Sum aggregates the sum of a partition's values.
func Sum[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Measure[K]] {
	return measure[T, K](value, stats.Sum)
}

// Mean aggregates the arithmetic mean of a partition's values.
func Mean[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Measure[K]] {
	return measure[T, K](value, stats.Mean)
}

// Median aggregates the median of a partition's values.
func Median[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Measure[K]] {
	return measure[T, K](value, stats.Median)
}

// StdDev aggregates the population standard deviation of a partition's
// values.
func StdDev[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Measure[K]] {
	return measure[T, K](value, stats.StandardDeviation)
}

// Count aggregates the number of tuples in a partition.
func Count[T any, K comparable]() AggregateFunc[T, K, Measure[K]] {
	return func(items []T, key K) (Measure[K], bool, error) {
		if len(items) == 0 {
			return Measure[K]{}, false, nil
		}
		return Measure[K]{Key: key, Value: float64(len(items))}, true, nil
	}
}

// Stats aggregates a Summary of a partition's values.
func Stats[T any, K comparable](value func(T) float64) AggregateFunc[T, K, Summary[K]] {
	return func(items []T, key K) (Summary[K], bool, error) {
		if len(items) == 0 {
			return Summary[K]{}, false, nil
		}
		data := values(items, value)
		s := Summary[K]{Key: key, Count: len(data)}
		var err error
		if s.Min, err = data.Min(); err != nil {
			return Summary[K]{}, false, err
		}
		if s.Max, err = data.Max(); err != nil {
			return Summary[K]{}, false, err
		}
		if s.Mean, err = data.Mean(); err != nil {
			return Summary[K]{}, false, err
		}
		if s.StdDev, err = data.StandardDeviation(); err != nil {
			return Summary[K]{}, false, err
		}
		return s, true, nil
	}
}
