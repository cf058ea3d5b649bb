package attendance

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseQR(t *testing.T) {
	full := `{"id":"s-1","fullName":"Lina Haddad","email":"lina@example.com","phoneNumber":"0100","college":"Engineering","grade":"3","major":"Civil","address":"Street 9"}`
	quoted, _ := json.Marshal(full)

	cases := []struct {
		name string
		raw  string
		want StudentIdentitySnapshot
	}{
		{
			name: "object",
			raw:  full,
			want: StudentIdentitySnapshot{ID: "s-1", Name: "Lina Haddad", Email: "lina@example.com", Phone: "0100", College: "Engineering", Grade: "3", Major: "Civil", Address: "Street 9"},
		},
		{
			name: "serialized string",
			raw:  string(quoted),
			want: StudentIdentitySnapshot{ID: "s-1", Name: "Lina Haddad", Email: "lina@example.com", Phone: "0100", College: "Engineering", Grade: "3", Major: "Civil", Address: "Street 9"},
		},
		{
			name: "missing optional fields",
			raw:  `{"fullName":"Omar"}`,
			want: StudentIdentitySnapshot{Name: "Omar", Email: "", Phone: notSpecified, College: notSpecified, Grade: notSpecified, Major: notSpecified, Address: notSpecified},
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: StudentIdentitySnapshot{Name: unknownStudent, Phone: notSpecified, College: notSpecified, Grade: notSpecified, Major: notSpecified, Address: notSpecified},
		},
		{
			name: "alternate spellings and numeric id",
			raw:  `{"studentId":42,"name":" Sara ","phone":"0111"}`,
			want: StudentIdentitySnapshot{ID: "42", Name: "Sara", Phone: "0111", College: notSpecified, Grade: notSpecified, Major: notSpecified, Address: notSpecified},
		},
		{
			name: "extended json object id",
			raw:  `{"_id":{"$oid":"65f0c0ffee"},"fullName":"Noor"}`,
			want: StudentIdentitySnapshot{ID: "65f0c0ffee", Name: "Noor", Phone: notSpecified, College: notSpecified, Grade: notSpecified, Major: notSpecified, Address: notSpecified},
		},
		{
			name: "numeric grade",
			raw:  `{"id":"S9","fullName":"Omar","grade":3}`,
			want: StudentIdentitySnapshot{ID: "S9", Name: "Omar", Phone: notSpecified, College: notSpecified, Grade: "3", Major: notSpecified, Address: notSpecified},
		},
		{
			name: "numeric phone",
			raw:  `{"id":"S9","fullName":"Omar","phoneNumber":201001234567}`,
			want: StudentIdentitySnapshot{ID: "S9", Name: "Omar", Phone: "201001234567", College: notSpecified, Grade: notSpecified, Major: notSpecified, Address: notSpecified},
		},
		{
			name: "serialized string with numeric grade",
			raw:  `"{\"id\":\"S9\",\"fullName\":\"Omar\",\"grade\":12}"`,
			want: StudentIdentitySnapshot{ID: "S9", Name: "Omar", Phone: notSpecified, College: notSpecified, Grade: "12", Major: notSpecified, Address: notSpecified},
		},
		{
			name: "boolean field",
			raw:  `{"id":"S9","fullName":"Omar","major":true}`,
			want: StudentIdentitySnapshot{ID: "S9", Name: "Omar", Phone: notSpecified, College: notSpecified, Grade: notSpecified, Major: "true", Address: notSpecified},
		},
		{
			name: "null and nested values fall back to defaults",
			raw:  `{"id":"S9","fullName":null,"name":"Omar","email":null,"college":{"code":7},"address":["a"]}`,
			want: StudentIdentitySnapshot{ID: "S9", Name: "Omar", Phone: notSpecified, College: notSpecified, Grade: notSpecified, Major: notSpecified, Address: notSpecified},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseQR(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("ParseQR: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v\nwant %+v", got, tc.want)
			}
		})
	}
}

func TestParseQRMalformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`"{not valid json"`,
		`{not valid json`,
		`[1,2,3]`,
		`42`,
		`"just text"`,
	} {
		_, err := ParseQR(json.RawMessage(raw))
		var qe *MalformedQRError
		if !errors.As(err, &qe) {
			t.Errorf("ParseQR(%q) error = %v, want MalformedQRError", raw, err)
		}
	}
}
