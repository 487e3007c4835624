package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/ngazi/apps/api/echo"
	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/queue"
	"github.com/trezcool/ngazi/core/student"
	cachesvc "github.com/trezcool/ngazi/services/cache"
	inmemdb "github.com/trezcool/ngazi/storage/database/inmem"
	testutil "github.com/trezcool/ngazi/tests"
)

var errNotFound = httpErr{Error: "not found"}

type testApp struct {
	server  *echoapi.Server
	queue   *queue.Queue
	cache   core.CacheService
	recRepo progression.Repository
	stdRepo student.Repository
	progSvc *progression.Service
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewTestConfig()
	conf.Debug = false // exercise production error rendering
	logger := testutil.NewLogger()

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	recRepo := inmemdb.NewRecordRepository(db)
	stdRepo := inmemdb.NewStudentRepository(db)

	// set up services
	cacheSvc := cachesvc.NewInMemService()
	jobQueue := queue.New(conf, logger, nil)
	stdSvc := student.NewService(stdRepo)
	progSvc := progression.NewService(recRepo, stdSvc, jobQueue, logger, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	progression.InitValidators(validate, translator)
	queue.InitValidators(validate, translator)

	// set up server
	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			ProgressionSvc: progSvc,
			StudentSvc:     stdSvc,
			Queue:          jobQueue,
			Cache:          cacheSvc,
			Validate:       validate,
			Translator:     translator,
		},
	)

	return &testApp{
		server:  server,
		queue:   jobQueue,
		cache:   cacheSvc,
		recRepo: recRepo,
		stdRepo: stdRepo,
		progSvc: progSvc,
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
	extra    interface{}
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
