package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

// invite sends an invitation from ctxA to toID and returns it.
func invite(t *testing.T, e *testEnv, ctxA, toID string) domain.Invitation {
	t.Helper()
	w := e.do(t, http.MethodPost, "/invitations", ctxA, SendInvitationRequest{ToUserID: toID})
	wantCode(t, w, http.StatusCreated, "")
	var inv domain.Invitation
	decode(t, w, &inv)
	return inv
}

func TestInvitations_SendListAccept(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.login(t, "janedoe"), e.login(t, "johnsmith")

	inv := invite(t, e, a, "u2")
	wantCode(t, e.do(t, http.MethodPost, "/invitations", a, SendInvitationRequest{ToUserID: "u2"}), http.StatusConflict, ErrCodeConflict)
	wantCode(t, e.do(t, http.MethodPost, "/invitations", b, SendInvitationRequest{ToUserID: "u1"}), http.StatusConflict, ErrCodeConflict)
	wantCode(t, e.do(t, http.MethodPost, "/invitations", a, SendInvitationRequest{ToUserID: "u1"}), http.StatusBadRequest, ErrCodeBadRequest)
	wantCode(t, e.do(t, http.MethodPost, "/invitations", a, SendInvitationRequest{ToUserID: "u9"}), http.StatusNotFound, ErrCodeNotFound)

	var in, out viewer.InvitationsPayload
	decode(t, e.do(t, http.MethodGet, "/invitations", b, nil), &in)
	decode(t, e.do(t, http.MethodGet, "/invitations", a, nil), &out)
	if len(in.Incoming) != 1 || len(in.Outgoing) != 0 || len(out.Outgoing) != 1 {
		t.Fatalf("unexpected invitations: b=%+v a=%+v", in, out)
	}

	wantCode(t, e.do(t, http.MethodPost, "/invitations/"+inv.ID+"/accept", a, nil), http.StatusForbidden, ErrCodeForbidden)

	w := e.do(t, http.MethodPost, "/invitations/"+inv.ID+"/accept", b, nil)
	wantCode(t, w, http.StatusOK, "")
	var acc AcceptInvitationResponse
	decode(t, w, &acc)
	if acc.Invitation.Status != domain.InvitationAccepted || acc.Session == nil || acc.Session.Counterpart.ID != "u1" {
		t.Fatalf("unexpected accept: %+v", acc)
	}

	var sr SessionResponse
	decode(t, e.do(t, http.MethodGet, "/session", a, nil), &sr)
	if !sr.Active || sr.Session.Counterpart.ID != "u2" {
		t.Fatalf("sender should see the session: %+v", sr)
	}
}

func TestSession_SharedCartAndEnd(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.login(t, "janedoe"), e.login(t, "johnsmith")
	e.do(t, http.MethodPost, "/cart/items", b, AddCartItemRequest{ProductID: "1"})

	inv := invite(t, e, a, "u2")
	wantCode(t, e.do(t, http.MethodPost, "/invitations/"+inv.ID+"/accept", b, nil), http.StatusOK, "")

	var added AddCartItemResponse
	decode(t, e.do(t, http.MethodPost, "/cart/items", a, AddCartItemRequest{ProductID: "5", Quantity: 2}), &added)
	if !added.Cart.Shared || added.Cart.Partition != "shared:"+inv.ID {
		t.Fatalf("want shared partition, got %+v", added.Cart.Cart)
	}

	var seen CartResponse
	decode(t, e.do(t, http.MethodGet, "/cart", b, nil), &seen)
	if len(seen.Lines) != 1 || seen.Lines[0].ProductID != "5" || seen.SubtotalCents != 4590 {
		t.Fatalf("counterpart should see the shared cart: %+v", seen)
	}

	wantCode(t, e.do(t, http.MethodDelete, "/session", a, nil), http.StatusNoContent, "")
	wantCode(t, e.do(t, http.MethodDelete, "/session", a, nil), http.StatusConflict, ErrCodeConflict)

	var sr SessionResponse
	decode(t, e.do(t, http.MethodGet, "/session", b, nil), &sr)
	if sr.Active {
		t.Fatalf("counterpart should be idle after end: %+v", sr)
	}
	decode(t, e.do(t, http.MethodGet, "/cart", b, nil), &seen)
	if seen.Partition != "personal:u2" || len(seen.Lines) != 1 || seen.Lines[0].ProductID != "1" {
		t.Fatalf("want the untouched personal cart back, got %+v", seen)
	}
}

func TestDeclineInvitation(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.login(t, "janedoe"), e.login(t, "johnsmith")
	inv := invite(t, e, a, "u2")

	w := e.do(t, http.MethodPost, "/invitations/"+inv.ID+"/decline", b, nil)
	wantCode(t, w, http.StatusOK, "")
	var nr NoticeResponse
	decode(t, w, &nr)
	if nr.Notice.Title != "Request declined" {
		t.Fatalf("unexpected notice: %+v", nr.Notice)
	}
	wantCode(t, e.do(t, http.MethodPost, "/invitations/"+inv.ID+"/decline", a, nil), http.StatusNotFound, ErrCodeNotFound)

	// Sender cancelling their own request.
	inv = invite(t, e, a, "u2")
	decode(t, e.do(t, http.MethodPost, "/invitations/"+inv.ID+"/decline", a, nil), &nr)
	if nr.Notice.Title != "Request cancelled" {
		t.Fatalf("unexpected notice: %+v", nr.Notice)
	}
}

func TestNavigate(t *testing.T) {
	e := newTestEnv(t)
	a := e.login(t, "janedoe")

	w := e.do(t, http.MethodPost, "/navigate", a, NavigateRequest{Path: "/product/5"})
	wantCode(t, w, http.StatusOK, "")
	var rec domain.NavigationRecord
	decode(t, w, &rec)
	if rec.Path != "/product/5" || rec.InitiatorID != "u1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	wantCode(t, e.do(t, http.MethodPost, "/navigate", a, NavigateRequest{Path: "product"}), http.StatusBadRequest, ErrCodeBadRequest)

	var st viewer.State
	decode(t, e.do(t, http.MethodGet, "/contexts/"+a, "", nil), &st)
	if st.Location != "/product/5" {
		t.Fatalf("location not updated: %q", st.Location)
	}
}

func TestMessages(t *testing.T) {
	e := newTestEnv(t)
	a := e.login(t, "janedoe")

	w := e.do(t, http.MethodPost, "/conversations/u2/messages", a, SendMessageRequest{Text: "Hi John!"})
	wantCode(t, w, http.StatusCreated, "")
	var sent SendMessageResponse
	decode(t, w, &sent)
	if sent.Notice == nil || sent.Notice.Description != "John Smith is offline. They will see your message later." {
		t.Fatalf("want offline notice, got %+v", sent.Notice)
	}

	b := e.login(t, "johnsmith")
	decode(t, e.do(t, http.MethodPost, "/conversations/u1/messages", b, SendMessageRequest{Text: "Hey"}), &sent)
	if sent.Notice != nil {
		t.Fatalf("recipient is online, no notice expected: %+v", sent.Notice)
	}

	var mr MessagesResponse
	decode(t, e.do(t, http.MethodGet, "/conversations/u1/messages", b, nil), &mr)
	if len(mr.Messages) != 2 || mr.Messages[0].Text != "Hi John!" || mr.Messages[1].SenderID != "u2" {
		t.Fatalf("unexpected conversation: %+v", mr.Messages)
	}

	wantCode(t, e.do(t, http.MethodPost, "/conversations/u2/messages", a, SendMessageRequest{Text: ""}), http.StatusBadRequest, ErrCodeBadRequest)
	wantCode(t, e.do(t, http.MethodPost, "/conversations/u1/messages", a, SendMessageRequest{Text: "me"}), http.StatusBadRequest, ErrCodeBadRequest)
}
