package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	kivik "github.com/go-kivik/kivik/v4"

	"petshop/config"
)

// ClassifyConnectionError explains a failed document store connection with remediation hints.
func ClassifyConnectionError(err error, addr string) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, config.ErrCloudantBinding) {
		return fmt.Sprintf("%v\n"+
			"  Remediation:\n"+
			"  - Check that BINDING_CLOUDANT holds host, port, url, username and password\n"+
			"  - Or unset BINDING_CLOUDANT and use the CLOUDANT_* variables", err)
	}

	switch kivik.HTTPStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("Authentication failed for Cloudant at %s.\n"+
			"  Remediation:\n"+
			"  - Verify CLOUDANT_USERNAME and CLOUDANT_PASSWORD\n"+
			"  - Check CLOUDANT_AUTH_TYPE is BASIC or COUCHDB_SESSION\n"+
			"  - Set ADMIN_PARTY=true only for a CouchDB without users", addr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to Cloudant at %s timed out.\n"+
			"  Possible causes:\n"+
			"  - CouchDB is starting up (wait and retry)\n"+
			"  - Network latency or firewall blocking the connection\n"+
			"  Remediation:\n"+
			"  - Raise RETRY_COUNT or RETRY_DELAY for slow starts", addr)
	}

	errStr := strings.ToLower(err.Error())
	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(errStr, "connection refused") {
		return fmt.Sprintf("Connection refused by Cloudant at %s.\n"+
			"  This usually means CouchDB is not running.\n"+
			"  Remediation:\n"+
			"  - Start CouchDB: docker run -d -p 5984:5984 -e COUCHDB_USER=admin -e COUCHDB_PASSWORD=pass couchdb\n"+
			"  - Verify CLOUDANT_URL points at the right host and port", addr)
	}

	if strings.Contains(errStr, "no such host") {
		return fmt.Sprintf("Cannot resolve hostname in Cloudant address %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname is correct\n"+
			"  - Check DNS configuration", addr)
	}

	return fmt.Sprintf("Failed to connect to Cloudant at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure CouchDB/Cloudant is running and accessible\n"+
		"  - Check the CLOUDANT_URL setting\n"+
		"  - Verify network connectivity", addr, err)
}
