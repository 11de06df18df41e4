// Package mocks provides gomock implementations of the ports for service tests.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockProfileStore(ctrl)
//	store.EXPECT().GetByID(gomock.Any(), "user-1").Return(profile, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/accountdesk/accountdesk/internal/ports ProfileStore,RoleMapper
