package models

import "testing"

func TestCredentialsValidate(t *testing.T) {
	cases := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"valid", Credentials{Username: "daiyu", Password: "falling-petals"}, false},
		{"missing username", Credentials{Password: "falling-petals"}, true},
		{"blank username", Credentials{Username: "   ", Password: "falling-petals"}, true},
		{"short password", Credentials{Username: "daiyu", Password: "short"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.creds.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestReadingProgressValidate(t *testing.T) {
	if err := (ReadingProgress{Chapter: 1, Position: 0}).Validate(); err != nil {
		t.Errorf("expected valid progress, got %v", err)
	}
	if err := (ReadingProgress{Chapter: 0}).Validate(); err == nil {
		t.Error("expected error for chapter 0")
	}
	if err := (ReadingProgress{Chapter: 3, Position: -1}).Validate(); err == nil {
		t.Error("expected error for negative position")
	}
}

func TestFlowRequestField(t *testing.T) {
	req := FlowRequest{"selection": "  寶玉摔玉  "}
	if got := req.Field("selection"); got != "寶玉摔玉" {
		t.Errorf("Field should trim whitespace, got %q", got)
	}
	if got := req.Field("absent"); got != "" {
		t.Errorf("missing field should be empty, got %q", got)
	}
}

func TestSuccessResponses(t *testing.T) {
	resp := Success(map[string]string{"token": "abc"})
	if resp.Status != string(APIStatusOK) {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
	if resp.Message != "" {
		t.Errorf("plain success should carry no message, got %q", resp.Message)
	}
	if resp.Result == nil {
		t.Error("expected result payload")
	}

	resp = SuccessWithMessage("saved", nil)
	if resp.Status != string(APIStatusOK) || resp.Message != "saved" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := Error("something failed")
	if resp.Status != string(APIStatusError) {
		t.Errorf("expected error status, got %s", resp.Status)
	}
	if resp.Message != "something failed" {
		t.Errorf("unexpected message: %s", resp.Message)
	}
}
