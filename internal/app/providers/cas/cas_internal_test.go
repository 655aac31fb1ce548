package cas

import (
	"strings"
	"testing"
)

const successBody = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationSuccess>
    <cas:user>jf1234</cas:user>
    <cas:attributes>
      <cas:mail>jfox@example.edu</cas:mail>
      <cas:displayName>Jordan Fox</cas:displayName>
    </cas:attributes>
  </cas:authenticationSuccess>
</cas:serviceResponse>`

const failureBody = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationFailure code="INVALID_TICKET">
    Ticket ST-1856339 not recognized
  </cas:authenticationFailure>
</cas:serviceResponse>`

func TestParseServiceResponse_Success(t *testing.T) {
	a, err := parseServiceResponse([]byte(successBody))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Subject != "jf1234" {
		t.Errorf("subject: got %q, want %q", a.Subject, "jf1234")
	}
	if a.Email != "jfox@example.edu" {
		t.Errorf("email: got %q, want %q", a.Email, "jfox@example.edu")
	}
	if a.Name != "Jordan Fox" {
		t.Errorf("name: got %q, want %q", a.Name, "Jordan Fox")
	}
}

func TestParseServiceResponse_SuccessWithoutAttributes(t *testing.T) {
	body := `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationSuccess><cas:user>jf1234</cas:user></cas:authenticationSuccess>
</cas:serviceResponse>`

	a, err := parseServiceResponse([]byte(body))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Subject != "jf1234" || a.Email != "" || a.Name != "" {
		t.Errorf("unexpected assertion: %+v", a)
	}
}

func TestParseServiceResponse_Failure(t *testing.T) {
	_, err := parseServiceResponse([]byte(failureBody))
	if err == nil {
		t.Fatal("expected error for authentication failure")
	}
	if !strings.Contains(err.Error(), "INVALID_TICKET") {
		t.Errorf("error should carry the failure code: %v", err)
	}
}

func TestParseServiceResponse_EmptyUser(t *testing.T) {
	body := `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationSuccess><cas:user></cas:user></cas:authenticationSuccess>
</cas:serviceResponse>`

	if _, err := parseServiceResponse([]byte(body)); err == nil {
		t.Fatal("expected error for empty user")
	}
}

func TestParseServiceResponse_Garbage(t *testing.T) {
	if _, err := parseServiceResponse([]byte("not xml at all")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestServiceURL_CarriesState(t *testing.T) {
	p := New("https://cas.example.edu/cas", "https://campushub.example.edu", nil, nil, nil, nil)

	got := p.serviceURL("abc 123")
	want := "https://campushub.example.edu/auth/cas/callback?state=abc+123"
	if got != want {
		t.Errorf("serviceURL: got %q, want %q", got, want)
	}
}
