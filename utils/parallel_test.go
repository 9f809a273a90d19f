package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestWorkers(t *testing.T) {
	test.That(t, ParallelFactor, test.ShouldBeGreaterThanOrEqualTo, 1)

	test.That(t, Workers(4, 10), test.ShouldEqual, 4)
	test.That(t, Workers(4, 2), test.ShouldEqual, 2)
	test.That(t, Workers(4, 0), test.ShouldEqual, 4)
	test.That(t, Workers(-3, 0), test.ShouldEqual, ParallelFactor)
	test.That(t, Workers(0, 1), test.ShouldEqual, 1)
}
