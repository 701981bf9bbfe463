package test

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/backend"
	"github.com/carevine/carevine/core/client"
	"github.com/carevine/carevine/core/registry"
)

type CareAPITestSuite struct {
	IntegrationTestSuite
}

func TestCareAPITestSuite(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION to run the container based suite")
	}
	ts := &CareAPITestSuite{}
	suite.Run(t, ts)
}

type authResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	User    map[string]interface{} `json:"user"`
	Token   string                 `json:"token"`
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

type listEnvelope struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Data    []map[string]interface{} `json:"data"`
}

// register creates a fresh caregiver account and returns a client
// carrying its bearer token
func (s *CareAPITestSuite) register(email string) client.Client {
	var response authResponse
	status, err := client.NewWithRouter(s.router).Post("/register", map[string]string{
		"name":                  "Nurse Joy",
		"email":                 email,
		"password":              "correct horse battery",
		"password_confirmation": "correct horse battery",
		"device_name":           "integration-test",
	}, &response)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, status)
	s.Require().NotEmpty(response.Token)
	return client.NewWithRouter(s.router).WithToken(response.Token)
}

func (s *CareAPITestSuite) TestReminderLifecycle() {
	cl := s.register("lifecycle@carevine.example")

	var created envelope
	status, err := cl.Post("/reminders", map[string]string{
		"title": "morning medication",
		"notes": "room 12, with breakfast",
	}, &created)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, status)
	s.Require().True(created.Success)
	id := created.Data["id"].(string)

	var read envelope
	status, err = cl.Get("/reminders/"+id, &read)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal("morning medication", read.Data["title"])

	var updated envelope
	status, err = cl.Put("/reminders/"+id, map[string]string{
		"title": "morning medication",
		"notes": "room 14, with breakfast",
	}, &updated)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal("room 14, with breakfast", updated.Data["notes"])

	var deleted envelope
	status, err = cl.Delete("/reminders/"+id, &deleted)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)

	status, err = cl.Delete("/reminders/"+id, &deleted)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusNotFound, status)
}

func (s *CareAPITestSuite) TestAnonymousAccessIsRejected() {
	anonymous := client.NewWithRouter(s.router)

	var response envelope
	status, err := anonymous.Post("/reminders", map[string]string{"title": "forged"}, &response)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusUnauthorized, status)
	s.Require().Equal("unauthenticated", response.Message)
}

func (s *CareAPITestSuite) TestLoginAndLogout() {
	s.register("logout@carevine.example")

	var login authResponse
	status, err := client.NewWithRouter(s.router).Post("/login", map[string]string{
		"email":       "logout@carevine.example",
		"password":    "correct horse battery",
		"device_name": "second-device",
	}, &login)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)

	cl := client.NewWithRouter(s.router).WithToken(login.Token)
	var user envelope
	status, err = cl.Get("/user", &user)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal("logout@carevine.example", user.Data["email"])

	status, err = cl.Post("/logout", nil, nil)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)

	status, err = cl.Get("/user", &user)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusUnauthorized, status)
}

func (s *CareAPITestSuite) TestResourceNotifications() {
	cl := s.register("notifications@carevine.example")

	var created envelope
	status, err := cl.Post("/patients", map[string]string{
		"name": "Edna Krabappel",
		"room": "12",
	}, &created)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, status)

	notifications := s.consumeNotifications(1, 30*time.Second)
	s.Require().NotEmpty(notifications)

	found := false
	for _, notification := range notifications {
		if notification.Resource == "patient" && notification.Operation == core.OperationCreate {
			found = true
		}
	}
	s.Require().True(found, "expected a create notification for patient")
}

func (s *CareAPITestSuite) TestRouteManifestIsPersisted() {
	reg, err := registry.New(s.dbConn)
	s.Require().NoError(err)

	var routes []backend.RouteInfo
	timestamp, err := reg.Accessor("_backend_").Read("routes", &routes)
	s.Require().NoError(err)
	s.Require().False(timestamp.IsZero())
	// two resources with six operation routes each
	s.Require().Len(routes, 12)
}
