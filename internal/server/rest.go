package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/handler"
	"github.com/goevery/chatrelay/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type StatsProvider interface {
	Stats() broadcaster.Stats
}

type RESTServer struct {
	logger        *zap.Logger
	authenticator *auth.Authenticator

	pushHandler     handler.PushHandlerInterface
	roomHandler     *handler.RoomHandler
	contactsHandler *handler.ContactsHandler
	stats           StatsProvider
}

// NewRESTServer builds the server-side HTTP surface. contactsHandler may be nil,
// in which case contact presence is not exposed.
func NewRESTServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	pushHandler handler.PushHandlerInterface,
	roomHandler *handler.RoomHandler,
	contactsHandler *handler.ContactsHandler,
	stats StatsProvider,
) *RESTServer {
	return &RESTServer{
		logger,
		authenticator,
		pushHandler,
		roomHandler,
		contactsHandler,
		stats,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}).Methods("GET")

	router.HandleFunc("/push", s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		var pushRequest handler.PushRequest
		err := json.NewDecoder(r.Body).Decode(&pushRequest)
		if err != nil {
			s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
			return
		}

		pushResponse, err := s.pushHandler.Handle(r.Context(), pushRequest)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, pushResponse)
	})).Methods("POST", "OPTIONS")

	router.HandleFunc("/rooms/{roomId}", s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		roomResponse, err := s.roomHandler.Handle(r.Context(), mux.Vars(r)["roomId"])
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, roomResponse)
	})).Methods("GET", "OPTIONS")

	router.HandleFunc("/stats", s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		authentication, _ := auth.AuthenticationFromContext(r.Context())
		if !authentication.IsReader() {
			s.writeError(w, ierr.New(ierr.ErrorCodePermissionDenied, errors.New("read scope required")))
			return
		}

		s.writeJSON(w, http.StatusOK, s.stats.Stats())
	})).Methods("GET", "OPTIONS")

	if s.contactsHandler == nil {
		return
	}

	router.HandleFunc("/users/{userId}/contacts/presence", s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		contactsResponse, err := s.contactsHandler.Handle(r.Context(), mux.Vars(r)["userId"])
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, contactsResponse)
	})).Methods("GET", "OPTIONS")
}

func (s *RESTServer) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		authentication, err := s.authenticator.AuthenticateBearer(r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, err)
			return
		}

		next(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var coded ierr.Error
	if !errors.As(err, &coded) {
		s.logger.Error("error in rest handler", zap.Error(err))

		coded = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	s.writeJSON(w, coded.Code.HTTPStatus(), coded)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

