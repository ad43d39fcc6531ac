//go:build integration

// Run against a server started with AUTH_DEV_MODE=true:
//
//	go test -tags integration ./tests/...
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type Participant struct {
	UserUID string `json:"user_uid"`
	TeamID  string `json:"team_id"`
	Status  string `json:"status"`
}

type Challenge struct {
	ID              string        `json:"id"`
	CreatorUID      string        `json:"creator_uid"`
	Type            string        `json:"type"`
	Status          string        `json:"status"`
	MaxParticipants int           `json:"max_participants"`
	Participants    []Participant `json:"participants"`
}

type TeamMember struct {
	UserUID string `json:"user_uid"`
	Role    string `json:"role"`
	Status  string `json:"status"`
}

type Team struct {
	ID        string       `json:"id"`
	LeaderUID string       `json:"leader_uid"`
	Members   []TeamMember `json:"members"`
}

type Application struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type IntegrationTestSuite struct {
	suite.Suite
	baseURL string
	client  *http.Client
	run     string
	tokens  map[string]string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	suite.baseURL = "http://localhost:8080"
	suite.client = &http.Client{Timeout: 10 * time.Second}
	suite.run = fmt.Sprintf("%d", time.Now().UnixNano())
	suite.tokens = map[string]string{}
	suite.waitForService()
}

func (suite *IntegrationTestSuite) waitForService() {
	for i := 0; i < 30; i++ {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			fmt.Println("service is ready")
			return
		}
		fmt.Printf("waiting for service... (attempt %d/30)\n", i+1)
		time.Sleep(1 * time.Second)
	}
	suite.T().Fatal("service failed to start within 30 seconds")
}

// user returns a run-unique uid and signs it in on first use.
func (suite *IntegrationTestSuite) user(name string) (string, string) {
	uid := name + "-" + suite.run
	if tok, ok := suite.tokens[uid]; ok {
		return uid, tok
	}
	var res struct {
		Token string `json:"token"`
	}
	resp, err := suite.doRequest("POST", "/auth/login", "", map[string]string{"id_token": "dev:" + uid + ":" + name})
	suite.Require().NoError(err)
	suite.Require().Equal(http.StatusOK, resp.StatusCode, "dev login must succeed, is AUTH_DEV_MODE set?")
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&res))
	suite.tokens[uid] = res.Token
	return uid, res.Token
}

func (suite *IntegrationTestSuite) challenge(token, kind, privacy string) Challenge {
	body := map[string]any{
		"type":              kind,
		"title":             "Integration " + kind,
		"difficulty":        "medium",
		"languages_allowed": []string{"Go", "Python"},
		"privacy":           privacy,
		"max_team_size":     2,
		"problem": map[string]any{
			"statement":         "Sum two numbers",
			"requirements":      []string{"read stdin"},
			"submission_format": "GitHub repository",
			"judging_criteria":  []string{"correctness"},
		},
	}
	resp, err := suite.doRequest("POST", "/challenges", token, body)
	suite.Require().NoError(err)
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)
	var out struct {
		Challenge Challenge `json:"challenge"`
	}
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out.Challenge
}

func (suite *IntegrationTestSuite) TestDuelFlow() {
	t := suite.T()
	_, annTok := suite.user("ann")
	bob, bobTok := suite.user("bob")
	_, catTok := suite.user("cat")

	duel := suite.challenge(annTok, "duel", "public")
	assert.Equal(t, 2, duel.MaxParticipants)
	assert.Equal(t, "pending", duel.Status)
	fmt.Println("duel created")

	resp, err := suite.doRequest("POST", "/challenges/"+duel.ID+"/join", bobTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/challenges/"+duel.ID+"/join", catTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "duel holds creator plus one")
	var e ErrorResponse
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "NOT_ELIGIBLE", e.Error.Code)
	fmt.Println("third duelist rejected")

	resp, err = suite.doRequest("PATCH", "/challenges/"+duel.ID, annTok, map[string]string{"status": "active"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sol := map[string]string{"submission_url": "https://github.com/" + bob + "/duel", "description": "solution"}
	resp, err = suite.doRequest("POST", "/challenges/"+duel.ID+"/submissions", bobTok, sol)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/challenges/"+duel.ID+"/submissions", bobTok, sol)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second submission must be rejected")
	fmt.Println("double submission rejected")

	resp, err = suite.doRequest("GET", "/users/me/challenges", bobTok, nil)
	assert.NoError(t, err)
	var mine struct {
		Participating []Challenge `json:"participating"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&mine))
	found := false
	for _, c := range mine.Participating {
		found = found || c.ID == duel.ID
	}
	assert.True(t, found, "duel listed under participating")
}

func (suite *IntegrationTestSuite) TestTeamSuccession() {
	t := suite.T()
	_, hostTok := suite.user("host")
	_, annTok := suite.user("ann")
	bob, bobTok := suite.user("bob")

	event := suite.challenge(hostTok, "team-event", "public")

	resp, err := suite.doRequest("POST", "/challenges/"+event.ID+"/teams", annTok, map[string]string{"name": "Gophers"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Team Team `json:"team"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp, err = suite.doRequest("POST", "/teams/"+created.Team.ID+"/join", bobTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/teams/"+created.Team.ID+"/leave", annTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var left struct {
		Team    Team `json:"team"`
		Deleted bool `json:"deleted"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&left))
	assert.False(t, left.Deleted)
	assert.Equal(t, bob, left.Team.LeaderUID)
	fmt.Println("leadership handed over")

	resp, err = suite.doRequest("POST", "/teams/"+created.Team.ID+"/leave", bobTok, nil)
	assert.NoError(t, err)
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&left))
	assert.True(t, left.Deleted)

	resp, err = suite.doRequest("GET", "/teams/"+created.Team.ID, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	fmt.Println("empty team deleted")
}

func (suite *IntegrationTestSuite) TestPrivateChallengeApplications() {
	t := suite.T()
	_, hostTok := suite.user("host")
	ann, annTok := suite.user("ann")

	private := suite.challenge(hostTok, "bounty", "private")

	resp, err := suite.doRequest("POST", "/challenges/"+private.ID+"/join", annTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/challenges/"+private.ID+"/applications", annTok, map[string]string{"message": "please"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var applied struct {
		Application Application `json:"application"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&applied))

	resp, err = suite.doRequest("POST", "/challenges/"+private.ID+"/applications", annTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/applications/"+applied.Application.ID+"/approve", hostTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/applications/"+applied.Application.ID+"/reject", hostTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "decided applications stay decided")

	resp, err = suite.doRequest("POST", "/challenges/"+private.ID+"/join", annTok, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "approved applicant joins")

	resp, err = suite.doRequest("GET", "/challenges/"+private.ID, "", nil)
	assert.NoError(t, err)
	var got struct {
		Challenge Challenge `json:"challenge"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	if assert.Len(t, got.Challenge.Participants, 1) {
		assert.Equal(t, ann, got.Challenge.Participants[0].UserUID)
	}
	fmt.Println("approved applicant admitted")
}

func (suite *IntegrationTestSuite) TestErrorScenarios() {
	t := suite.T()

	resp, err := suite.doRequest("GET", "/challenges/does-not-exist-"+suite.run, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/challenges", "", map[string]string{"type": "duel"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, tok := suite.user("ann")
	resp, err = suite.doRequest("POST", "/challenges", tok, map[string]string{"type": "relay"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fmt.Println("error scenarios handled")
}

func (suite *IntegrationTestSuite) doRequest(method, path, token string, body interface{}) (*http.Response, error) {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, suite.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := suite.client.Do(req)
	if err == nil {
		suite.T().Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
