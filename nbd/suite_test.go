package nbd

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestNBD(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "nbd package suite")
}
