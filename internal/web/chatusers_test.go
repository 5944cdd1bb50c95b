package web

import (
	"net/http"
	"strconv"
	"testing"
)

func TestChatUsers_CRUDLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.setup("admin", "swordfish-1")

	resp := api.do(http.MethodPost, "/api/chat-users/", token, map[string]string{
		"platform":     "discord",
		"platform_id":  "100200300",
		"username":     "analyst",
		"display_name": "Analyst",
		"role":         "user",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created chatUserResponse
	decodeBody(t, resp, &created)
	if created.ID == 0 || created.Role != "user" || created.IsSuperuser {
		t.Fatalf("created = %+v", created)
	}

	resp = api.do(http.MethodGet, "/api/chat-users/", token, nil)
	var list []chatUserResponse
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].PlatformID != "100200300" {
		t.Fatalf("list = %+v", list)
	}

	resp = api.do(http.MethodPut, "/api/chat-users/"+itoa(created.ID), token, map[string]string{
		"role": "admin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	var updated chatUserResponse
	decodeBody(t, resp, &updated)
	if updated.Role != "admin" || !updated.IsSuperuser {
		t.Errorf("updated = %+v, want admin with is_superuser", updated)
	}
	if updated.Username != "analyst" {
		t.Errorf("username changed on role-only update: %+v", updated)
	}

	resp = api.do(http.MethodDelete, "/api/chat-users/"+itoa(created.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	var msg map[string]string
	decodeBody(t, resp, &msg)
	if msg["message"] != "Chat user deleted successfully" {
		t.Errorf("message = %q", msg["message"])
	}

	resp = api.do(http.MethodGet, "/api/chat-users/"+itoa(created.ID), token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
	if detail := detailOf(t, resp); detail != "Chat user not found" {
		t.Errorf("detail = %q", detail)
	}
}

func TestChatUsers_DuplicateIdentityRejected(t *testing.T) {
	api := newTestAPI(t)
	token := api.setup("admin", "swordfish-1")

	body := map[string]string{"platform": "slack", "platform_id": "U123", "username": "a", "role": "basic"}
	resp := api.do(http.MethodPost, "/api/chat-users/", token, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/api/chat-users/", token, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatUsers_InvalidInput(t *testing.T) {
	api := newTestAPI(t)
	token := api.setup("admin", "swordfish-1")

	resp := api.do(http.MethodPost, "/api/chat-users/", token, map[string]string{
		"platform": "irc", "platform_id": "x", "role": "user",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad platform status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/api/chat-users/", token, map[string]string{
		"platform": "discord", "platform_id": "1", "role": "root",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad role status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/api/chat-users/not-a-number", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatUsers_SuperuserOnly(t *testing.T) {
	api := newTestAPI(t)
	api.setup("admin", "swordfish-1")
	viewer := viewerToken(t, api)

	resp := api.do(http.MethodGet, "/api/chat-users/", viewer, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if detail := detailOf(t, resp); detail != "Not enough privileges" {
		t.Errorf("detail = %q", detail)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
