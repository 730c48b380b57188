package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/socialbot/follower-tracker/internal/domain"
)

func seedSearchUsers(t *testing.T, repo UserRepository) {
	t.Helper()
	chat := "4242"
	for _, u := range []*domain.User{
		{Username: "alice", Email: "alice@corp.io", IsActive: true, ChatID: &chat},
		{Username: "bob", Email: "bob@example.com", IsActive: false},
		{Username: "carla", Email: "carla@corp.io", IsActive: true},
		{Username: "dave_ops", Email: "dave@example.com", IsActive: true},
	} {
		u.PasswordHash = "x"
		if err := repo.Create(context.Background(), u); err != nil {
			t.Fatalf("create %s: %v", u.Username, err)
		}
	}
}

func decodeSearch(t *testing.T, raw string) SearchRequest {
	t.Helper()
	var req SearchRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	return req
}

func usernames(users []domain.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

func TestUserSearchFiltersAndSorts(t *testing.T) {
	repo := NewUserRepository(newDBForTest(t))
	seedSearchUsers(t, repo)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "and with sort",
			body: `{"filter":{"condition":"and","rules":[
				{"field":"username","operator":"contains","value":"a"},
				{"field":"is_active","operator":"equal","value":true}]},
				"item_sort":"username","direction_sort":"desc"}`,
			want: []string{"dave_ops", "carla", "alice"},
		},
		{
			name: "or with nested group",
			body: `{"filter":{"condition":"or","rules":[
				{"field":"username","operator":"in","value":["bob"]},
				{"condition":"and","rules":[
					{"field":"email","operator":"ends_with","value":"@corp.io"},
					{"field":"chat_id","operator":"is_not_null"}]}]},
				"item_sort":"username"}`,
			want: []string{"alice", "bob"},
		},
		{
			name: "like wildcards are literal",
			body: `{"filter":{"rules":[{"field":"username","operator":"contains","value":"_"}]}}`,
			want: []string{"dave_ops"},
		},
		{
			name: "between and not_in",
			body: `{"filter":{"condition":"and","rules":[
				{"field":"username","operator":"between","value":["b","d"]},
				{"field":"username","operator":"not_in","value":["bob"]}]}}`,
			want: []string{"carla"},
		},
		{
			name: "empty filter matches everyone",
			body: `{"filter":{"rules":[]},"item_sort":"email","direction_sort":"asc"}`,
			want: []string{"alice", "bob", "carla", "dave_ops"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page, err := repo.Search(ctx, decodeSearch(t, tc.body))
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			got := usernames(page.Items)
			if len(got) != len(tc.want) || page.Total != int64(len(tc.want)) {
				t.Fatalf("got %v (total %d), want %v", got, page.Total, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestUserSearchPages(t *testing.T) {
	repo := NewUserRepository(newDBForTest(t))
	seedSearchUsers(t, repo)

	page, err := repo.Search(context.Background(), decodeSearch(t,
		`{"filter":{"rules":[]},"page_number":2,"page_size":3,"item_sort":"username"}`))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 4 || page.TotalPages != 2 || len(page.Items) != 1 || page.Items[0].Username != "dave_ops" {
		t.Fatalf("unexpected page: total=%d pages=%d items=%v", page.Total, page.TotalPages, usernames(page.Items))
	}
}

func TestUserSearchRejectsBadRequests(t *testing.T) {
	repo := NewUserRepository(newDBForTest(t))
	ctx := context.Background()

	for name, body := range map[string]string{
		"unknown field":      `{"filter":{"rules":[{"field":"password_hash","operator":"equal","value":"x"}]}}`,
		"unknown operator":   `{"filter":{"rules":[{"field":"username","operator":"regex","value":"x"}]}}`,
		"between needs pair": `{"filter":{"rules":[{"field":"username","operator":"between","value":["a"]}]}}`,
		"in needs list":      `{"filter":{"rules":[{"field":"username","operator":"in","value":"bob"}]}}`,
		"like needs string":  `{"filter":{"rules":[{"field":"username","operator":"contains","value":3}]}}`,
		"bad condition":      `{"filter":{"condition":"xor","rules":[]}}`,
		"bad sort column":    `{"filter":{"rules":[]},"item_sort":"password_hash"}`,
		"bad sort direction": `{"filter":{"rules":[]},"item_sort":"username","direction_sort":"up"}`,
	} {
		if _, err := repo.Search(ctx, decodeSearch(t, body)); !errors.Is(err, ErrInvalidSearch) {
			t.Fatalf("%s: expected ErrInvalidSearch, got %v", name, err)
		}
	}
}
