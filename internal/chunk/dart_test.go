package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dartAuthService = `import 'package:http/http.dart' as http;
import '../models/user.dart';

part 'auth_helpers.dart';

/// Fetches a user by id.
Future<User> fetchUser(String id) async {
  final resp = await http.get(Uri.parse('https://example.com/$id'));
  return User.fromJson(resp.body);
}

const int maxRetries = 3;

/// Handles login and session state.
class AuthService {
  final http.Client _client;
  int _attempts = 0;

  AuthService(this._client);

  Future<bool> login(String user, String pass) async {
    final body = '{"u": "$user", "p": "$pass"}';
    _attempts++;
    return body.isNotEmpty;
  }

  int get attempts => _attempts;

  static String hash(String s) => s;
}
`

func TestParseDart_Declarations(t *testing.T) {
	pf, err := ParseDart("lib/services/auth.dart", []byte(dartAuthService))
	require.NoError(t, err)

	assert.Equal(t, "dart", pf.Language)

	require.Len(t, pf.Imports, 2)
	assert.Equal(t, "package:http/http.dart", pf.Imports[0].Target)
	assert.Equal(t, "../models/user.dart", pf.Imports[1].Target)

	require.Len(t, pf.Parts, 1)
	assert.Equal(t, "auth_helpers.dart", pf.Parts[0])

	require.Len(t, pf.Functions, 1)
	fn := pf.Functions[0]
	assert.Equal(t, "fetchUser", fn.Name)
	assert.Equal(t, "String id", fn.Params)
	assert.Equal(t, "Future<User>", fn.ReturnType)
	assert.True(t, fn.Async)
	assert.Contains(t, fn.DocComment, "Fetches a user")
	assert.Contains(t, fn.Source, "/// Fetches a user by id.")

	require.Len(t, pf.Constants, 1)
	assert.Equal(t, "maxRetries", pf.Constants[0].Name)

	require.Len(t, pf.Classes, 1)
	cls := pf.Classes[0]
	assert.Equal(t, "AuthService", cls.Name)
	assert.Equal(t, "class", cls.Kind)
	assert.Contains(t, cls.DocComment, "login and session")

	names := make([]string, 0, len(cls.Methods))
	for _, m := range cls.Methods {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "AuthService") // constructor
	assert.Contains(t, names, "login")
	assert.Contains(t, names, "attempts") // getter
	assert.Contains(t, names, "hash")

	for _, m := range cls.Methods {
		if m.Name == "hash" {
			assert.True(t, m.Static)
		}
		if m.Name == "attempts" {
			assert.Equal(t, "int", m.ReturnType)
		}
	}

	props := make([]string, 0, len(cls.Properties))
	for _, p := range cls.Properties {
		props = append(props, p.Name)
	}
	assert.Contains(t, props, "_client")
	assert.Contains(t, props, "_attempts")
}

func TestParseDart_PartOf(t *testing.T) {
	src := "part of 'auth.dart';\n\nvoid helper() {\n  print('hi');\n}\n"
	pf, err := ParseDart("lib/services/auth_helpers.dart", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "auth.dart", pf.PartOf)
	require.Len(t, pf.Functions, 1)
	assert.Equal(t, "helper", pf.Functions[0].Name)
}

func TestParseDart_SkipsStringsAndComments(t *testing.T) {
	src := `import 'dart:core';

/* outer /* nested block */ still a comment */
void tricky() {
  final a = 'brace { inside string }';
  final b = "double } quoted {";
  final c = '''
multi 'line' { content }
''';
  final d = r'raw \d+{2} string';
  final e = 'interp ${items.map((x) => {x: 1})} done';
  // line comment with } brace
}

void after() {
  return;
}
`
	pf, err := ParseDart("lib/tricky.dart", []byte(src))
	require.NoError(t, err)
	require.Len(t, pf.Functions, 2)
	assert.Equal(t, "tricky", pf.Functions[0].Name)
	assert.Equal(t, "after", pf.Functions[1].Name)
}

func TestParseDart_EnumAndMixin(t *testing.T) {
	src := `enum Status { active, inactive }

mixin Loggable {
  void log(String msg) {
    print(msg);
  }
}
`
	pf, err := ParseDart("lib/kinds.dart", []byte(src))
	require.NoError(t, err)
	require.Len(t, pf.Classes, 2)
	assert.Equal(t, "enum", pf.Classes[0].Kind)
	assert.Equal(t, "Status", pf.Classes[0].Name)
	assert.Equal(t, "mixin", pf.Classes[1].Kind)
	require.Len(t, pf.Classes[1].Methods, 1)
	assert.Equal(t, "log", pf.Classes[1].Methods[0].Name)
}

func TestParseDart_UnbalancedBracesFails(t *testing.T) {
	src := "void broken() {\n  if (x) {\n    return;\n"
	_, err := ParseDart("lib/broken.dart", []byte(src))
	assert.Error(t, err)
}

func TestParseDart_NothingRecognisedFails(t *testing.T) {
	_, err := ParseDart("lib/noise.dart", []byte("???? not dart at all ????"))
	assert.Error(t, err)
}

func TestParseDart_LineRanges(t *testing.T) {
	pf, err := ParseDart("lib/services/auth.dart", []byte(dartAuthService))
	require.NoError(t, err)

	fn := pf.Functions[0]
	assert.Equal(t, 6, fn.StartLine, "doc comment included in range")
	assert.Equal(t, 10, fn.EndLine)

	cls := pf.Classes[0]
	assert.Greater(t, cls.EndLine, cls.StartLine)
	lastLine := strings.Count(dartAuthService, "\n")
	assert.LessOrEqual(t, cls.EndLine, lastLine)
}
