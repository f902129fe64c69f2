// Package steps implements the pet service BDD step definitions
package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"petshop/api"
	"petshop/config"
	"petshop/service"
	"petshop/storage"
)

// PetsContext holds the server and last response for one scenario
type PetsContext struct {
	server     *httptest.Server
	api        *api.API
	store      *storage.MemoryStore
	httpClient *http.Client

	lastStatusCode   int
	lastHeader       http.Header
	lastResponseBody []byte
}

// NewPetsContext creates an idle context; Start brings up the server
func NewPetsContext() *PetsContext {
	return &PetsContext{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Start serves the API over a fresh in-memory store
func (pc *PetsContext) Start() error {
	cfg := &config.Config{}
	cfg.API.MaxBodyBytes = 1 << 20
	cfg.API.AllowedOrigins = []string{"*"}
	cfg.API.AllowReset = true
	cfg.API.RateLimit.RequestsPerSecond = 100000
	cfg.API.RateLimit.Burst = 100000

	logger := zap.NewNop().Sugar()
	pc.store = storage.NewMemoryStore()
	pc.api = api.NewAPI(service.NewPetService(pc.store, logger), pc.store, cfg, logger)
	pc.server = httptest.NewServer(pc.api.Handler())
	return nil
}

// Stop shuts the scenario server down
func (pc *PetsContext) Stop() {
	if pc.server != nil {
		pc.server.Close()
	}
	if pc.api != nil {
		_ = pc.api.Stop(context.Background())
	}
}

// RegisterPetSteps registers every pet step definition
func RegisterPetSteps(sc *godog.ScenarioContext, pc *PetsContext) {
	// Setup
	sc.Step(`^the following pets$`, pc.theFollowingPets)

	// HTTP operations
	sc.Step(`^I GET "([^"]*)"$`, pc.iGET)
	sc.Step(`^I POST to "([^"]*)" with:$`, pc.iPOSTToWith)
	sc.Step(`^I DELETE "([^"]*)"$`, pc.iDELETE)
	sc.Step(`^I retrieve the pet named "([^"]*)"$`, pc.iRetrieveThePetNamed)
	sc.Step(`^I rename the pet named "([^"]*)" to "([^"]*)"$`, pc.iRenameThePetNamed)
	sc.Step(`^I purchase the pet named "([^"]*)"$`, pc.iPurchaseThePetNamed)
	sc.Step(`^I delete the pet named "([^"]*)"$`, pc.iDeleteThePetNamed)

	// Assertions
	sc.Step(`^the response status should be (\d+)$`, pc.theResponseStatusShouldBe)
	sc.Step(`^I should see (\d+) pets?$`, pc.iShouldSeePets)
	sc.Step(`^I should see a pet named "([^"]*)"$`, pc.iShouldSeeAPetNamed)
	sc.Step(`^I should not see a pet named "([^"]*)"$`, pc.iShouldNotSeeAPetNamed)
	sc.Step(`^the pet should have name "([^"]*)"$`, pc.thePetShouldHaveName)
	sc.Step(`^the pet named "([^"]*)" should be (available|unavailable)$`, pc.thePetNamedShouldBe)
	sc.Step(`^the error message should contain "([^"]*)"$`, pc.theErrorMessageShouldContain)
	sc.Step(`^the Location header should point to the new pet$`, pc.theLocationHeaderShouldPointToTheNewPet)
}

// do sends a request to the scenario server and records the response
func (pc *PetsContext) do(method, path, body string) error {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, pc.server.URL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	pc.lastStatusCode = resp.StatusCode
	pc.lastHeader = resp.Header
	pc.lastResponseBody = data
	return nil
}

func (pc *PetsContext) theFollowingPets(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("pet table needs a header row and at least one pet")
	}
	header := table.Rows[0].Cells
	for _, row := range table.Rows[1:] {
		doc := map[string]interface{}{}
		for i, cell := range row.Cells {
			key := header[i].Value
			if key == "available" {
				doc[key] = strings.EqualFold(cell.Value, "true")
				continue
			}
			doc[key] = cell.Value
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := pc.do(http.MethodPost, "/pets", string(body)); err != nil {
			return err
		}
		if pc.lastStatusCode != http.StatusCreated {
			return fmt.Errorf("failed to create pet %v: %d %s", doc["name"], pc.lastStatusCode, pc.lastResponseBody)
		}
	}
	return nil
}

func (pc *PetsContext) iGET(path string) error {
	return pc.do(http.MethodGet, path, "")
}

func (pc *PetsContext) iPOSTToWith(path string, body *godog.DocString) error {
	if body == nil {
		return fmt.Errorf("request body cannot be nil")
	}
	return pc.do(http.MethodPost, path, body.Content)
}

func (pc *PetsContext) iDELETE(path string) error {
	return pc.do(http.MethodDelete, path, "")
}

// petNamed looks a pet up through the name filter of the list endpoint
func (pc *PetsContext) petNamed(name string) (map[string]interface{}, error) {
	if err := pc.do(http.MethodGet, "/pets?name="+url.QueryEscape(name), ""); err != nil {
		return nil, err
	}
	pets, err := pc.lastPets()
	if err != nil {
		return nil, err
	}
	if len(pets) == 0 {
		return nil, fmt.Errorf("no pet named %q", name)
	}
	return pets[0], nil
}

func (pc *PetsContext) petIDNamed(name string) (string, error) {
	pet, err := pc.petNamed(name)
	if err != nil {
		return "", err
	}
	id, _ := pet["_id"].(string)
	if id == "" {
		return "", fmt.Errorf("pet %q has no _id", name)
	}
	return id, nil
}

func (pc *PetsContext) iRetrieveThePetNamed(name string) error {
	id, err := pc.petIDNamed(name)
	if err != nil {
		return err
	}
	return pc.do(http.MethodGet, "/pets/"+id, "")
}

func (pc *PetsContext) iRenameThePetNamed(name, newName string) error {
	pet, err := pc.petNamed(name)
	if err != nil {
		return err
	}
	pet["name"] = newName
	body, err := json.Marshal(pet)
	if err != nil {
		return err
	}
	return pc.do(http.MethodPut, "/pets/"+pet["_id"].(string), string(body))
}

func (pc *PetsContext) iPurchaseThePetNamed(name string) error {
	id, err := pc.petIDNamed(name)
	if err != nil {
		return err
	}
	return pc.do(http.MethodPut, "/pets/"+id+"/purchase", "")
}

func (pc *PetsContext) iDeleteThePetNamed(name string) error {
	id, err := pc.petIDNamed(name)
	if err != nil {
		return err
	}
	return pc.do(http.MethodDelete, "/pets/"+id, "")
}

func (pc *PetsContext) lastPets() ([]map[string]interface{}, error) {
	var pets []map[string]interface{}
	if err := json.Unmarshal(pc.lastResponseBody, &pets); err != nil {
		return nil, fmt.Errorf("response is not a pet list: %w (%s)", err, pc.lastResponseBody)
	}
	return pets, nil
}

func (pc *PetsContext) theResponseStatusShouldBe(code int) error {
	if pc.lastStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, pc.lastStatusCode, pc.lastResponseBody)
	}
	return nil
}

func (pc *PetsContext) iShouldSeePets(count int) error {
	pets, err := pc.lastPets()
	if err != nil {
		return err
	}
	if len(pets) != count {
		return fmt.Errorf("expected %d pets, got %d", count, len(pets))
	}
	return nil
}

func (pc *PetsContext) hasPetNamed(name string) (bool, error) {
	pets, err := pc.lastPets()
	if err != nil {
		return false, err
	}
	for _, pet := range pets {
		if pet["name"] == name {
			return true, nil
		}
	}
	return false, nil
}

func (pc *PetsContext) iShouldSeeAPetNamed(name string) error {
	found, err := pc.hasPetNamed(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("pet %q not in response", name)
	}
	return nil
}

func (pc *PetsContext) iShouldNotSeeAPetNamed(name string) error {
	found, err := pc.hasPetNamed(name)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("pet %q unexpectedly in response", name)
	}
	return nil
}

func (pc *PetsContext) thePetShouldHaveName(name string) error {
	var pet map[string]interface{}
	if err := json.Unmarshal(pc.lastResponseBody, &pet); err != nil {
		return fmt.Errorf("response is not a pet: %w", err)
	}
	if pet["name"] != name {
		return fmt.Errorf("expected pet name %q, got %v", name, pet["name"])
	}
	return nil
}

func (pc *PetsContext) thePetNamedShouldBe(name, state string) error {
	pet, err := pc.petNamed(name)
	if err != nil {
		return err
	}
	want := state == "available"
	if pet["available"] != want {
		return fmt.Errorf("expected %q available=%v, got %v", name, want, pet["available"])
	}
	return nil
}

func (pc *PetsContext) theErrorMessageShouldContain(text string) error {
	var resp api.ErrorResponse
	if err := json.Unmarshal(pc.lastResponseBody, &resp); err != nil {
		return fmt.Errorf("response is not an error: %w", err)
	}
	if !strings.Contains(resp.Message, text) {
		return fmt.Errorf("expected message containing %q, got %q", text, resp.Message)
	}
	return nil
}

func (pc *PetsContext) theLocationHeaderShouldPointToTheNewPet() error {
	var pet map[string]interface{}
	if err := json.Unmarshal(pc.lastResponseBody, &pet); err != nil {
		return fmt.Errorf("response is not a pet: %w", err)
	}
	want := "/pets/" + fmt.Sprint(pet["_id"])
	if loc := pc.lastHeader.Get("Location"); !strings.HasSuffix(loc, want) {
		return fmt.Errorf("expected Location ending in %q, got %q", want, loc)
	}
	return nil
}
