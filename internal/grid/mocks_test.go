// internal/grid/mocks_test.go
//
// testify doubles for widget collaborators.

package grid

import "github.com/stretchr/testify/mock"

// MockHost records FinishTrial calls.
type MockHost struct {
	mock.Mock
}

func (m *MockHost) FinishTrial(r Result) {
	m.Called(r)
}
