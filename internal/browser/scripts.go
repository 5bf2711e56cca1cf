// internal/browser/scripts.go
package browser

import (
	"fmt"
)

// refAttr tags elements handed out by Find. Its value is a per-document token
// plus a sequence number, so a ref from a previous document never resolves.
const refAttr = "data-ceq-ref"

// prelude defines tag(el) and lookup(ref) inside every evaluated script.
const prelude = `
const __ceq = window.__ceq || (window.__ceq = {token: Math.random().toString(36).slice(2), seq: 0});
const tag = (el) => {
	let r = el.getAttribute('` + refAttr + `');
	if (!r || !r.startsWith(__ceq.token + '-')) {
		r = __ceq.token + '-' + (++__ceq.seq);
		el.setAttribute('` + refAttr + `', r);
	}
	return r;
};
const lookup = (ref) => ref ? document.querySelector('[` + refAttr + `="' + CSS.escape(ref) + '"]') : null;
`

// findScript resolves a query under the element named by args.root, or the
// document when root is empty, and returns the tagged refs in document order.
const findScript = `(() => {
%s
const args = %s;
let root = document;
if (args.root) {
	root = lookup(args.root);
	if (!root) return {stale: true};
}
const out = [];
if (args.kind === 'xpath') {
	const snap = document.evaluate(args.expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	for (let i = 0; i < snap.snapshotLength; i++) {
		const n = snap.snapshotItem(i);
		if (n.nodeType === Node.ELEMENT_NODE) out.push(n);
	}
} else {
	out.push(...root.querySelectorAll(args.expr));
}
return {refs: out.map(tag)};
})()`

// elementScript runs body with `el` bound to the element named by args.ref.
const elementScript = `(() => {
%s
const args = %s;
const el = lookup(args.ref);
if (!el) return {stale: true};
const v = ((el, args) => { %s })(el, args);
return {value: v === undefined ? null : v};
})()`

// userScript calls a caller-supplied function body with Element arguments
// swapped for their nodes, Selenium style: the body reads arguments[i].
const userScript = `(() => {
%s
const refs = %s;
const raw = %s;
const argv = raw.map((v, i) => refs[i] ? lookup(refs[i]) : v);
if (refs.some((r, i) => r && !argv[i])) return {stale: true};
const v = (function() { %s }).apply(null, argv);
return {value: v === undefined ? null : v};
})()`

const describeBody = `
const tag = el.tagName.toLowerCase();
let type = (el.getAttribute('type') || '').toLowerCase();
if (tag === 'input' && !type) type = 'text';
const cs = window.getComputedStyle(el);
const rect = el.getBoundingClientRect();
const visible = (rect.width > 0 || rect.height > 0 || el.getClientRects().length > 0) &&
	cs.visibility !== 'hidden' && cs.display !== 'none';
const hasValue = ['input', 'textarea', 'select', 'button', 'option'].includes(tag);
return {
	tag: tag,
	type: type,
	name: el.getAttribute('name') || '',
	id: el.id || '',
	class: el.getAttribute('class') || '',
	text: (tag === 'textarea' || tag === 'select') ? '' : (el.innerText || el.textContent || ''),
	value: hasValue ? String(el.value == null ? '' : el.value) : '',
	onclick: el.getAttribute('onclick') || '',
	visible: visible,
	enabled: !el.disabled,
	checked: !!el.checked,
	required: el.hasAttribute('required'),
	readonly: el.hasAttribute('readonly'),
};`

const attributeBody = `return {has: el.hasAttribute(args.name), value: el.getAttribute(args.name) || ''};`

const enclosingBody = `
let n = el;
for (let i = 0; i < args.levels && n.parentElement; i++) n = n.parentElement;
return n.innerText || n.textContent || '';`

const optionsBody = `
return Array.from(el.options || []).map((o, i) => ({
	index: i,
	value: o.value,
	text: o.text || '',
	disabled: o.disabled || (o.parentElement && o.parentElement.tagName === 'OPTGROUP' && o.parentElement.disabled),
	selected: o.selected,
}));`

const scrollBody = `el.scrollIntoView({block: 'center', inline: 'nearest'}); return true;`

const clickBody = `el.click(); return true;`

const focusBody = `el.focus(); return true;`

const clearBody = `
el.focus();
if ('value' in el) {
	el.value = '';
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
}
return true;`

const changedBody = `el.dispatchEvent(new Event('change', {bubbles: true})); return true;`

const selectBody = `
if (!el.options || args.index < 0 || args.index >= el.options.length) {
	throw new Error('option index ' + args.index + ' out of range');
}
el.selectedIndex = args.index;
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;`

// buildFindScript renders findScript for the given arguments.
func buildFindScript(args []byte) string {
	return fmt.Sprintf(findScript, prelude, args)
}

// buildElementScript renders elementScript around body.
func buildElementScript(args []byte, body string) string {
	return fmt.Sprintf(elementScript, prelude, args, body)
}

// buildUserScript renders userScript around a caller-supplied body.
func buildUserScript(refs, raw []byte, body string) string {
	return fmt.Sprintf(userScript, prelude, refs, raw, body)
}
