package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	args := m.Called(ctx, prompt, opts)
	if r := args.Get(0); r != nil {
		return r.(*Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGenerator) Provider() string { return "mock" }
