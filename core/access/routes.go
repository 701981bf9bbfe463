package access

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/logger"
)

// authResponse is the response shape of login and register. User and
// token are top level, as the mobile client expects them.
type authResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	User    map[string]interface{} `json:"user"`
	Token   string                 `json:"token"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	DeviceName           string `json:"device_name"`
}

// HandleAuthRoutes adds the authentication routes to the router:
//
//	POST /login     public
//	POST /register  public
//	POST /logout    requires bearer token
//	GET  /user      requires bearer token
func HandleAuthRoutes(router *mux.Router, resolver *Resolver) {
	rlog := logger.Default()
	rlog.Debugln("authentication")
	rlog.Debugln("  handle route: /login POST")
	rlog.Debugln("  handle route: /register POST")
	rlog.Debugln("  handle route: /logout POST")
	rlog.Debugln("  handle route: /user GET")

	router.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var request loginRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			core.WriteEnvelope(w, http.StatusBadRequest, core.Failure("invalid request body"))
			return
		}
		fieldErrors := map[string]string{}
		requireField(fieldErrors, "email", request.Email)
		requireField(fieldErrors, "password", request.Password)
		requireField(fieldErrors, "device_name", request.DeviceName)
		if len(fieldErrors) > 0 {
			core.WriteEnvelope(w, http.StatusUnprocessableEntity,
				core.Envelope{Success: false, Message: "validation failed", Data: fieldErrors})
			return
		}

		principal, token, err := resolver.Login(r.Context(), request.Email, request.Password, request.DeviceName)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				core.WriteEnvelope(w, http.StatusUnauthorized, core.Failure("invalid email or password"))
				return
			}
			logger.FromContext(r.Context()).WithError(err).Errorln("login failed")
			core.WriteEnvelope(w, http.StatusInternalServerError, core.Failure("internal error"))
			return
		}
		core.WriteJSON(w, http.StatusOK, authResponse{
			Success: true,
			Message: "login successful",
			User:    principal.AsMap(),
			Token:   token,
		})
	}).Methods(http.MethodPost)

	router.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var request registerRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			core.WriteEnvelope(w, http.StatusBadRequest, core.Failure("invalid request body"))
			return
		}
		fieldErrors := map[string]string{}
		requireField(fieldErrors, "name", request.Name)
		requireField(fieldErrors, "email", request.Email)
		requireField(fieldErrors, "device_name", request.DeviceName)
		if !strings.Contains(request.Email, "@") {
			fieldErrors["email"] = "must be a valid email address"
		}
		if len(request.Password) < 8 {
			fieldErrors["password"] = "must be at least 8 characters"
		}
		if request.Password != request.PasswordConfirmation {
			fieldErrors["password_confirmation"] = "does not match password"
		}
		if len(fieldErrors) > 0 {
			core.WriteEnvelope(w, http.StatusUnprocessableEntity,
				core.Envelope{Success: false, Message: "validation failed", Data: fieldErrors})
			return
		}

		principal, token, err := resolver.Register(r.Context(),
			request.Name, request.Email, request.Password, request.DeviceName)
		if err != nil {
			if errors.Is(err, ErrDuplicateHandle) {
				core.WriteEnvelope(w, http.StatusUnprocessableEntity,
					core.Envelope{Success: false, Message: "validation failed",
						Data: map[string]string{"email": "already registered"}})
				return
			}
			logger.FromContext(r.Context()).WithError(err).Errorln("registration failed")
			core.WriteEnvelope(w, http.StatusInternalServerError, core.Failure("internal error"))
			return
		}
		core.WriteJSON(w, http.StatusCreated, authResponse{
			Success: true,
			Message: "registration successful",
			User:    principal.AsMap(),
			Token:   token,
		})
	}).Methods(http.MethodPost)

	router.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			core.WriteEnvelope(w, http.StatusUnauthorized, core.Failure("unauthenticated"))
			return
		}
		// revoke only the token presented with this request, other
		// devices of the same principal stay logged in
		token := TokenFromContext(r.Context())
		if err := resolver.Logout(r.Context(), token); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("logout failed")
			core.WriteEnvelope(w, http.StatusInternalServerError, core.Failure("internal error"))
			return
		}
		core.WriteEnvelope(w, http.StatusOK, core.Success("logout successful", nil))
	}).Methods(http.MethodPost)

	router.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			core.WriteEnvelope(w, http.StatusUnauthorized, core.Failure("unauthenticated"))
			return
		}
		core.WriteEnvelope(w, http.StatusOK, core.Success("ok", principal.AsMap()))
	}).Methods(http.MethodGet)
}

func requireField(fieldErrors map[string]string, name, value string) {
	if len(strings.TrimSpace(value)) == 0 {
		fieldErrors[name] = "is required"
	}
}
